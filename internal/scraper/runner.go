// Package scraper reads public profile data through an authenticated browser session. The
// pacing and batch ceiling live in Runner and are shared by every platform; what is read
// from the page is supplied by a platform Extractor.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"go.uber.org/zap"
)

// ErrNotInitialized is returned by navigation before Init has succeeded.
var ErrNotInitialized = errors.New("scraper: runner is not initialized")

// Sessions is the read side of the session store plus the ability to invalidate.
type Sessions interface {
	Load(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error)
	Invalidate(ctx context.Context, p schemas.Platform, reason string)
}

// initError marks failures to start a run, which repeat for every target.
type initError struct{ err error }

func (e *initError) Error() string { return e.err.Error() }
func (e *initError) Unwrap() error { return e.err }

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Platform schemas.Platform
	Sessions Sessions
	Factory  browser.Factory
	Policy   *antidetect.Policy
	// Recorder and RunID are optional; when set every navigation is recorded.
	Recorder *ledger.Recorder
	RunID    string
	// ContentTimeout bounds waits for page content after a navigation.
	ContentTimeout time.Duration
	Logger         *zap.Logger
}

// Runner is the per-run capability shared by platform scrapers: one browser context, the
// inter-navigation delay, scroll simulation and the batch counter. It is not shared across
// runs, so no pacing state leaks between concurrent scrapes.
type Runner struct {
	cfg    RunnerConfig
	batch  *antidetect.BatchCounter
	logger *zap.Logger

	mu        sync.Mutex
	bctx      browser.Context
	human     *humanoid.Humanoid
	navigated bool
	closed    bool
}

// NewRunner creates a runner. The batch counter starts at zero for every new runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentTimeout <= 0 {
		cfg.ContentTimeout = 20 * time.Second
	}
	return &Runner{
		cfg:    cfg,
		batch:  cfg.Policy.NewBatchCounter(),
		logger: logger.Named("scraper").With(zap.String("platform", string(cfg.Platform))),
	}
}

// Init loads the session and launches the browser context. It fails fast when no session
// is stored.
func (r *Runner) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return browser.ErrClosed
	}
	if r.bctx != nil {
		return nil
	}

	session, err := r.cfg.Sessions.Load(ctx, r.cfg.Platform)
	if err != nil {
		return &initError{fmt.Errorf("cannot scrape %s without a session: %w", r.cfg.Platform, err)}
	}
	bctx, err := r.cfg.Factory.Launch(ctx, browser.LaunchOptions{Platform: r.cfg.Platform, Session: session})
	if err != nil {
		return &initError{fmt.Errorf("failed to launch browser: %w", err)}
	}
	r.bctx = bctx
	r.human = humanoid.New(r.cfg.Policy, bctx, bctx.Viewport(), r.logger)
	r.logger.Debug("Runner initialized.", zap.Int("batch_limit", r.cfg.Policy.Config().BatchLimit))
	return nil
}

// Context returns the live browser context, or nil before Init.
func (r *Runner) Context() browser.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bctx
}

// Humanoid returns the input driver bound to the context, or nil before Init.
func (r *Runner) Humanoid() *humanoid.Humanoid {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.human
}

// ContentTimeout is how long extractors wait for page content.
func (r *Runner) ContentTimeout() time.Duration { return r.cfg.ContentTimeout }

// Visited returns how many navigations this run has made.
func (r *Runner) Visited() int { return r.batch.Count() }

// NavigateWithDelay visits url under the anti-detection policy. Once the batch ceiling is
// reached it fails immediately with *antidetect.BatchLimitError and does not navigate.
// The first navigation of a run is not delayed.
func (r *Runner) NavigateWithDelay(ctx context.Context, url string) (err error) {
	if err := r.batch.Check(); err != nil {
		return err
	}
	r.mu.Lock()
	bctx, human, first := r.bctx, r.human, !r.navigated
	r.navigated = true
	r.mu.Unlock()
	if bctx == nil {
		return ErrNotInitialized
	}

	span := r.cfg.Recorder.Step(r.cfg.RunID, "scrape.navigate", map[string]string{"url": url})
	defer func() {
		if err != nil {
			span.Fail(err)
			return
		}
		span.Done(nil)
	}()

	if !first {
		if err := human.Pause(ctx); err != nil {
			return err
		}
	}
	r.batch.Record()
	if err := bctx.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	blocker, err := browser.DetectBlocker(ctx, bctx)
	if err != nil {
		return err
	}
	switch blocker {
	case browser.BlockerLogin:
		r.cfg.Sessions.Invalidate(ctx, r.cfg.Platform, "redirected to sign-in while scraping")
		return blocker.Err()
	case browser.BlockerChallenge:
		return blocker.Err()
	}

	if err := human.Scroll(ctx); err != nil {
		return err
	}
	r.logger.Debug("Navigated.", zap.String("url", url), zap.Int("visited", r.batch.Count()))
	return nil
}

// Close tears down the context. It is safe to call more than once.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.bctx == nil {
		return nil
	}
	err := r.bctx.Close()
	r.bctx = nil
	r.human = nil
	return err
}
