// Package sessionstore owns the per-platform authenticated browser session: capturing it
// from an interactive login, replaying it, validating it, and invalidating it when a
// platform bounces us back to sign-in.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/credentials"
	"github.com/xkilldash9x/socialpilot/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSession is returned when no usable session is stored for a platform.
	ErrNoSession = errors.New("no stored session")
	// ErrSetupTimeout is returned when the operator does not finish logging in in time.
	ErrSetupTimeout = errors.New("timed out waiting for login to complete")
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultSignalTimeout = 15 * time.Second
)

// Status is the outcome of checking a stored session against the live platform.
type Status int

const (
	// StatusValid means the platform rendered a logged-in surface.
	StatusValid Status = iota
	// StatusMissing means nothing usable is stored.
	StatusMissing
	// StatusNeedsRefresh means the platform redirected to sign-in and the session was deleted.
	StatusNeedsRefresh
	// StatusUnverified means the check could not reach a verdict (network, challenge, browser failure).
	StatusUnverified
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusMissing:
		return "missing"
	case StatusNeedsRefresh:
		return "needs_refresh"
	case StatusUnverified:
		return "unverified"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Vault is the sealed persistence the store reads and writes through.
type Vault interface {
	Load(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error)
	Save(ctx context.Context, session *schemas.BrowserSession) error
	Clear(ctx context.Context, p schemas.Platform) error
}

// Store is the single owner of stored sessions. Every other component only reads them.
type Store struct {
	vault   Vault
	factory browser.Factory
	cfg     config.SessionConfig
	logger  *zap.Logger

	now           func() time.Time
	pollInterval  time.Duration
	signalTimeout time.Duration

	checks singleflight.Group
}

// New creates a session store.
func New(vault Vault, factory browser.Factory, cfg config.SessionConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		vault:         vault,
		factory:       factory,
		cfg:           cfg,
		logger:        logger.Named("session_store"),
		now:           time.Now,
		pollInterval:  defaultPollInterval,
		signalTimeout: defaultSignalTimeout,
	}
}

// Has reports whether a usable session is stored for p.
func (s *Store) Has(ctx context.Context, p schemas.Platform) bool {
	_, err := s.Load(ctx, p)
	return err == nil
}

// Load returns the stored session for p. An expired session is cleared and reported as
// ErrNoSession. A blob that no longer opens is reported as ErrNoSession but left in place.
func (s *Store) Load(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error) {
	session, err := s.vault.Load(ctx, p)
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		return nil, fmt.Errorf("%w for %s", ErrNoSession, p)
	case errors.Is(err, credentials.ErrCorrupt):
		s.logger.Warn("Stored session could not be opened.", zap.String("platform", string(p)), zap.Error(err))
		return nil, fmt.Errorf("%w for %s: %v", ErrNoSession, p, err)
	case err != nil:
		return nil, fmt.Errorf("failed to load %s session: %w", p, err)
	}

	if session.Expired(s.now()) {
		s.logger.Info("Stored session has expired, clearing it.", zap.String("platform", string(p)))
		if err := s.vault.Clear(ctx, p); err != nil {
			s.logger.Warn("Failed to clear expired session.", zap.String("platform", string(p)), zap.Error(err))
		}
		return nil, fmt.Errorf("%w for %s: expired", ErrNoSession, p)
	}
	return session, nil
}

// Clear deletes the stored session for p.
func (s *Store) Clear(ctx context.Context, p schemas.Platform) error {
	if err := s.vault.Clear(ctx, p); err != nil {
		return fmt.Errorf("failed to clear %s session: %w", p, err)
	}
	s.logger.Info("Session cleared.", zap.String("platform", string(p)))
	return nil
}

// Invalidate deletes the session after a component observed a login redirect while using it.
func (s *Store) Invalidate(ctx context.Context, p schemas.Platform, reason string) {
	s.logger.Warn("Invalidating session.", zap.String("platform", string(p)), zap.String("reason", reason))
	if err := s.vault.Clear(ctx, p); err != nil {
		s.logger.Error("Failed to delete invalidated session.", zap.String("platform", string(p)), zap.Error(err))
	}
}

// Setup opens a visible browser on the login page, waits for the operator to sign in,
// and captures the resulting session.
func (s *Store) Setup(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error) {
	desc, err := platform.Lookup(p)
	if err != nil {
		return nil, err
	}
	bctx, err := s.factory.Launch(ctx, browser.LaunchOptions{Platform: p, Visible: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open browser for %s login: %w", p, err)
	}
	defer bctx.Close()

	if err := bctx.Navigate(ctx, desc.LoginURL); err != nil {
		return nil, fmt.Errorf("failed to open %s login page: %w", p, err)
	}
	s.logger.Info("Waiting for login to complete in the browser window.",
		zap.String("platform", string(p)),
		zap.Duration("timeout", s.cfg.SetupTimeout))

	if err := s.waitForLogin(ctx, bctx, desc); err != nil {
		return nil, err
	}

	raw, err := bctx.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies after login: %w", err)
	}
	cookies := scopeCookies(raw, desc.Domain)
	auth, ok := findCookie(cookies, desc.AuthCookie)
	if !ok {
		return nil, fmt.Errorf("login for %s did not produce the %s cookie", p, desc.AuthCookie)
	}
	ua, err := bctx.UserAgent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read user agent: %w", err)
	}

	now := s.now().UTC()
	session := &schemas.BrowserSession{
		Platform:        p,
		Cookies:         cookies,
		UserAgent:       ua,
		Viewport:        bctx.Viewport(),
		CreatedAt:       now,
		LastValidatedAt: now,
	}
	if !auth.Expires.IsZero() {
		exp := auth.Expires.UTC()
		session.ExpiresAt = &exp
	}
	if err := s.vault.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save %s session: %w", p, err)
	}
	s.logger.Info("Session captured.", zap.String("platform", string(p)), zap.Int("cookies", len(cookies)))
	return session, nil
}

// waitForLogin polls for the logged-in DOM signal. The poll count is fixed up front so
// the wait is bounded by configuration even when Sleep returns early.
func (s *Store) waitForLogin(ctx context.Context, bctx browser.Context, desc platform.Descriptor) error {
	timeout := s.cfg.SetupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	polls := int(timeout / s.pollInterval)
	for i := 0; i <= polls; i++ {
		ok, err := bctx.Exists(ctx, desc.LoggedInSelector)
		if err != nil && ctx.Err() == nil {
			s.logger.Debug("Login probe failed.", zap.Error(err))
		}
		if ok {
			return nil
		}
		if err := bctx.Sleep(ctx, s.pollInterval); err != nil {
			break
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w for %s after %s", ErrSetupTimeout, desc.Platform, timeout)
}

// Validate reports whether the stored session still reaches a logged-in surface. It never
// returns an error: invalidity is an ordinary outcome.
func (s *Store) Validate(ctx context.Context, p schemas.Platform) bool {
	return s.Check(ctx, p) == StatusValid
}

// Check validates the stored session against the live platform. Concurrent checks for the
// same platform share one browser launch.
func (s *Store) Check(ctx context.Context, p schemas.Platform) Status {
	v, _, _ := s.checks.Do(string(p), func() (interface{}, error) {
		return s.check(ctx, p), nil
	})
	return v.(Status)
}

func (s *Store) check(ctx context.Context, p schemas.Platform) Status {
	logger := s.logger.With(zap.String("platform", string(p)))
	desc, err := platform.Lookup(p)
	if err != nil {
		logger.Warn("Unknown platform.", zap.Error(err))
		return StatusUnverified
	}
	session, err := s.Load(ctx, p)
	if errors.Is(err, ErrNoSession) {
		return StatusMissing
	}
	if err != nil {
		logger.Warn("Session could not be loaded for validation.", zap.Error(err))
		return StatusUnverified
	}

	bctx, err := s.factory.Launch(ctx, browser.LaunchOptions{Platform: p, Session: session})
	if err != nil {
		logger.Warn("Failed to launch browser for validation.", zap.Error(err))
		return StatusUnverified
	}
	defer bctx.Close()

	if err := bctx.Navigate(ctx, desc.HomeURL); err != nil {
		logger.Warn("Navigation failed during validation.", zap.Error(err))
		return StatusUnverified
	}
	if status, done := s.classifyLocation(ctx, bctx, desc); done {
		return status
	}
	if err := bctx.WaitVisible(ctx, desc.LoggedInSelector, s.signalTimeout); err != nil {
		// A slow client-side redirect can land on sign-in after the first URL read.
		if status, done := s.classifyLocation(ctx, bctx, desc); done {
			return status
		}
		logger.Info("Logged-in signal not found.", zap.Error(err))
		return StatusUnverified
	}

	session.LastValidatedAt = s.now().UTC()
	if fresh, err := bctx.Cookies(ctx); err == nil {
		scoped := scopeCookies(fresh, desc.Domain)
		if _, ok := findCookie(scoped, desc.AuthCookie); ok {
			session.Cookies = scoped
		}
	}
	if err := s.vault.Save(ctx, session); err != nil {
		logger.Warn("Failed to persist validation timestamp.", zap.Error(err))
	}
	logger.Info("Session is valid.")
	return StatusValid
}

// classifyLocation inspects the current URL for a sign-in redirect or a challenge page.
func (s *Store) classifyLocation(ctx context.Context, bctx browser.Context, desc platform.Descriptor) (Status, bool) {
	current, err := bctx.CurrentURL(ctx)
	if err != nil {
		return StatusUnverified, true
	}
	switch {
	case desc.IsChallengeURL(current):
		s.logger.Warn("Validation hit a security challenge.", zap.String("platform", string(desc.Platform)), zap.String("url", current))
		return StatusUnverified, true
	case desc.IsLoginURL(current):
		s.Invalidate(ctx, desc.Platform, "redirected to sign-in during validation")
		return StatusNeedsRefresh, true
	}
	return StatusValid, false
}

// scopeCookies keeps only cookies whose registrable domain is the platform domain.
func scopeCookies(cookies []schemas.Cookie, domain string) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(cookies))
	for _, c := range cookies {
		host := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil || registrable != domain {
			continue
		}
		out = append(out, c)
	}
	return out
}

func findCookie(cookies []schemas.Cookie, name string) (schemas.Cookie, bool) {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c, true
		}
	}
	return schemas.Cookie{}, false
}
