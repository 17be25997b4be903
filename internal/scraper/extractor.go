package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
)

const recentPostLimit = 5

// Extractor reads one platform's DOM.
type Extractor interface {
	Platform() schemas.Platform
	// ProfileURL normalizes a handle, slug or URL into a canonical profile URL.
	ProfileURL(target string) (string, error)
	// ValidateSession reports whether the current page is rendered for a signed-in user.
	ValidateSession(ctx context.Context, c browser.Context) (bool, error)
	// ExtractProfile reads the profile on the current page.
	ExtractProfile(ctx context.Context, c browser.Context, timeout time.Duration) (*schemas.RawProfileData, error)
}

// NewExtractor returns the extractor for p.
func NewExtractor(p schemas.Platform) (Extractor, error) {
	switch p {
	case schemas.PlatformX:
		return xExtractor{}, nil
	case schemas.PlatformLinkedIn:
		return linkedInExtractor{}, nil
	}
	return nil, fmt.Errorf("no profile extractor for platform %q", p)
}

// firstText returns the trimmed text of the first selector in the list that yields any.
func firstText(ctx context.Context, c browser.Context, selectors ...string) (string, error) {
	for _, sel := range selectors {
		text, err := c.Text(ctx, sel)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", sel, err)
		}
		if text = cleanText(text); text != "" {
			return text, nil
		}
	}
	return "", nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = cleanText(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
