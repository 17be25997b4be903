// internal/browser/context.go
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser/humanoid"
)

var (
	// ErrProfileBusy is returned when another live browser process holds the profile lock.
	ErrProfileBusy = errors.New("browser profile is in use by another process")
	// ErrClosed is returned by operations on a context that has been closed.
	ErrClosed = errors.New("browser context is closed")
)

// Context is one isolated browser tab bound to a platform profile. Exactly one Context
// exists per automation operation, and Close must be called exactly once by its owner.
type Context interface {
	humanoid.Executor

	Platform() schemas.Platform
	Viewport() schemas.Viewport

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// Exists reports whether selector currently matches a node, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Text returns the innerText of the first match, or "" when nothing matches.
	Text(ctx context.Context, selector string) (string, error)
	// TextAll returns the innerText of up to limit matches in document order.
	TextAll(ctx context.Context, selector string, limit int) ([]string, error)
	// Attribute returns the named attribute of the first match.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	// Evaluate runs a JavaScript expression and decodes its result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error

	SetUploadFiles(ctx context.Context, selector string, files []string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Cookies(ctx context.Context) ([]schemas.Cookie, error)
	UserAgent(ctx context.Context) (string, error)

	// Close tears down the tab and browser. It is idempotent.
	Close() error
}

// LaunchOptions selects the profile and state a new Context starts with.
type LaunchOptions struct {
	Platform schemas.Platform
	// Session is replayed into the new context when set.
	Session *schemas.BrowserSession
	// Visible forces a headed window regardless of configuration, for interactive login.
	Visible bool
}

// Factory creates browser contexts.
type Factory interface {
	Launch(ctx context.Context, opts LaunchOptions) (Context, error)
}
