package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/browser/humanoid"
)

// page bundles the context of one attempt with its input driver.
type page struct {
	c       browser.Context
	human   *humanoid.Humanoid
	timeout time.Duration
}

// Composer drives one platform's compose surface. Selectors are not contractual on either
// platform, so each composer keeps its own.
type Composer interface {
	Platform() schemas.Platform
	// HomeURL is where composing starts.
	HomeURL() string
	SupportsThreads() bool
	MaxMediaPerItem() int
	// Open opens the compose surface and waits for the first editor.
	Open(ctx context.Context, pg *page) error
	// AddItem appends thread item i (i >= 1) and waits for its editor.
	AddItem(ctx context.Context, pg *page, i int) error
	// TypeItem focuses the editor of item i and types text into it.
	TypeItem(ctx context.Context, pg *page, i int, text string) error
	// Attach uploads files into item i and waits until the platform shows them attached.
	Attach(ctx context.Context, pg *page, i int, files []string, timeout time.Duration) error
	// Submit clicks the button that finalizes the post.
	Submit(ctx context.Context, pg *page) error
	// SurfaceSelector matches while the compose surface is open.
	SurfaceSelector() string
	// Verify reads back the permalink and identifier of the newest post.
	Verify(ctx context.Context, pg *page) (url string, id string, err error)
}

// NewComposer returns the composer for p.
func NewComposer(p schemas.Platform) (Composer, error) {
	switch p {
	case schemas.PlatformX:
		return xComposer{}, nil
	case schemas.PlatformLinkedIn:
		return linkedInComposer{}, nil
	}
	return nil, fmt.Errorf("publishing to %q is not supported", p)
}

// clickAndWait clicks selector and waits for next to become visible.
func clickAndWait(ctx context.Context, pg *page, selector, next string) error {
	if err := pg.c.WaitVisible(ctx, selector, pg.timeout); err != nil {
		return fmt.Errorf("%s not found: %w", selector, err)
	}
	if err := pg.human.Click(ctx, selector); err != nil {
		return err
	}
	if err := pg.c.WaitVisible(ctx, next, pg.timeout); err != nil {
		return fmt.Errorf("%s did not appear: %w", next, err)
	}
	return nil
}
