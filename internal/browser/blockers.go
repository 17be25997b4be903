// internal/browser/blockers.go
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/socialpilot/internal/platform"
)

var (
	// ErrLoginRedirect is returned when a platform bounced the context to sign-in.
	ErrLoginRedirect = errors.New("redirected to sign-in, session expired")
	// ErrChallenge is returned when a CAPTCHA or security checkpoint is showing.
	ErrChallenge = errors.New("captcha or security challenge encountered")
)

// Blocker is something on the current page that stops automation from continuing.
type Blocker int

const (
	BlockerNone Blocker = iota
	BlockerLogin
	BlockerChallenge
)

func (b Blocker) String() string {
	switch b {
	case BlockerLogin:
		return "login"
	case BlockerChallenge:
		return "challenge"
	}
	return "none"
}

// Err returns the sentinel error for the blocker, or nil.
func (b Blocker) Err() error {
	switch b {
	case BlockerLogin:
		return ErrLoginRedirect
	case BlockerChallenge:
		return ErrChallenge
	}
	return nil
}

// DetectBlocker inspects the current URL and DOM for a sign-in redirect or a challenge.
// Challenges take precedence: a checkpoint page is never reported as a login.
func DetectBlocker(ctx context.Context, c Context) (Blocker, error) {
	desc, err := platform.Lookup(c.Platform())
	if err != nil {
		return BlockerNone, err
	}
	current, err := c.CurrentURL(ctx)
	if err != nil {
		return BlockerNone, fmt.Errorf("failed to read current url: %w", err)
	}
	if desc.IsChallengeURL(current) {
		return BlockerChallenge, nil
	}
	if desc.IsLoginURL(current) {
		return BlockerLogin, nil
	}
	if desc.ChallengeSelector != "" {
		found, err := c.Exists(ctx, desc.ChallengeSelector)
		if err != nil {
			return BlockerNone, fmt.Errorf("failed to probe for challenge widgets: %w", err)
		}
		if found {
			return BlockerChallenge, nil
		}
	}
	return BlockerNone, nil
}
