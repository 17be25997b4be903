// Package publisher posts content through a live browser session. Each attempt runs the
// same state machine on every platform; a Composer supplies the platform's compose surface.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/errclass"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"github.com/xkilldash9x/socialpilot/internal/media"
	"go.uber.org/zap"
)

// Sessions is the read side of the session store plus the ability to invalidate.
type Sessions interface {
	Load(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error)
	Invalidate(ctx context.Context, p schemas.Platform, reason string)
}

// Deps are the collaborators of a Publisher.
type Deps struct {
	Sessions Sessions
	Factory  browser.Factory
	Policy   *antidetect.Policy
	Media    media.Resolver
	// Recorder is optional.
	Recorder *ledger.Recorder
	// ElementTimeout bounds waits for compose elements. Defaults to 20s.
	ElementTimeout time.Duration
	Logger         *zap.Logger
}

// Publisher runs publish attempts and holds Review-mode contexts until they are released.
type Publisher struct {
	cfg     config.PublishConfig
	deps    Deps
	logger  *zap.Logger
	reviews *reviewRegistry
	now     func() time.Time
}

// New creates a publisher.
func New(cfg config.PublishConfig, deps Deps) *Publisher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ElementTimeout <= 0 {
		deps.ElementTimeout = 20 * time.Second
	}
	logger := deps.Logger.Named("publisher")
	return &Publisher{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		reviews: newReviewRegistry(logger),
		now:     time.Now,
	}
}

// stepError carries the publish error code decided by the state that failed.
type stepError struct {
	code schemas.PublishErrorCode
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(code schemas.PublishErrorCode, err error) error {
	return &stepError{code: code, err: err}
}

// Publish runs one attempt. It never returns an error and never panics: every outcome,
// including a recovered panic, is a PublishResult.
//
// Auto-mode contexts are closed before Publish returns. Review-mode contexts stay open for
// the operator and are held under the request's ContentItemID until Release is called.
func (p *Publisher) Publish(ctx context.Context, req schemas.PublishRequest) (res schemas.PublishResult) {
	a := &attempt{
		p:      p,
		req:    req,
		runID:  ledger.NewRunID(),
		state:  StateInit,
		logger: p.logger.With(zap.String("platform", string(req.Platform)), zap.String("mode", string(req.Mode)), zap.String("content_item_id", req.ContentItemID)),
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Publish attempt panicked.", zap.Any("panic", r), zap.Stringer("state", a.state), zap.Stack("stack"))
			res = schemas.PublishFailed(schemas.ErrCodeUnknown, fmt.Errorf("internal error during %s: %v", a.state, r))
		}
		a.teardown()
		a.logger.Info("Publish attempt finished.",
			zap.Bool("success", res.Success),
			zap.String("error_code", string(res.ErrorCode)),
			zap.String("platform_url", res.PlatformURL))
	}()
	return a.run(ctx)
}

// Release closes the Review-mode context held for contentItemID. It reports whether one
// was held. A held context keeps its platform's browser profile, so with a profile-locking
// factory every other launch on that platform waits until the hold is released. A new
// Review-mode attempt for the same content item releases the earlier hold itself.
func (p *Publisher) Release(contentItemID string) bool {
	return p.reviews.release(contentItemID)
}

// ReleaseAll closes every held Review-mode context and returns how many were closed.
func (p *Publisher) ReleaseAll() int {
	return p.reviews.releaseAll()
}

// Pending lists the content items whose Review-mode contexts are still open.
func (p *Publisher) Pending() []string {
	return p.reviews.ids()
}

// attempt is the state of one Publish call.
type attempt struct {
	p        *Publisher
	req      schemas.PublishRequest
	runID    string
	composer Composer
	state    State
	logger   *zap.Logger

	bctx browser.Context
	pg   *page
}

func (a *attempt) run(ctx context.Context) schemas.PublishResult {
	url, id, err := a.execute(ctx)
	if err == nil {
		a.transition(StateDone)
		return schemas.PublishSucceeded(url, id)
	}

	var code schemas.PublishErrorCode
	var se *stepError
	if errors.As(err, &se) {
		code = se.code
	} else {
		code = errclass.PublishCode(err.Error())
	}
	res := schemas.PublishFailed(code, err)
	if code == schemas.ErrCodeCaptcha {
		res.ScreenshotPath = a.captureScreenshot(ctx)
	}
	a.logger.Warn("Publish attempt failed.", zap.Stringer("state", a.state), zap.Error(err))
	return res
}

func (a *attempt) execute(ctx context.Context) (string, string, error) {
	if err := a.do(ctx, StateInit, a.validate); err != nil {
		return "", "", err
	}

	var session *schemas.BrowserSession
	err := a.do(ctx, StateSessionCheck, func(ctx context.Context) error {
		s, err := a.p.deps.Sessions.Load(ctx, a.req.Platform)
		if err != nil {
			return fail(schemas.ErrCodeSessionExpired, err)
		}
		session = s
		return nil
	})
	if err != nil {
		return "", "", err
	}

	if err := a.do(ctx, StateNavigate, func(ctx context.Context) error {
		return a.launchAndNavigate(ctx, session)
	}); err != nil {
		return "", "", err
	}
	if err := a.do(ctx, StateDetectBlockers, a.detectBlockers); err != nil {
		return "", "", err
	}
	if err := a.do(ctx, StateComposeOpen, func(ctx context.Context) error {
		return a.composer.Open(ctx, a.pg)
	}); err != nil {
		return "", "", err
	}

	for i, item := range a.items() {
		if i > 0 {
			if err := a.do(ctx, StateComposeOpen, func(ctx context.Context) error {
				return a.composer.AddItem(ctx, a.pg, i)
			}); err != nil {
				return "", "", err
			}
		}
		if item.text != "" {
			if err := a.do(ctx, StateTypeText, func(ctx context.Context) error {
				return a.composer.TypeItem(ctx, a.pg, i, item.text)
			}); err != nil {
				return "", "", err
			}
		}
		if len(item.media) > 0 {
			if err := a.do(ctx, StateUploadMedia, func(ctx context.Context) error {
				return a.upload(ctx, i, item.media)
			}); err != nil {
				return "", "", err
			}
		}
	}

	if a.req.Mode == schemas.ModeReview {
		if err := a.do(ctx, StateWaitForUser, a.waitForUser); err != nil {
			return "", "", err
		}
	} else {
		if err := a.do(ctx, StateSubmit, a.submit); err != nil {
			return "", "", err
		}
	}

	var url, id string
	err = a.do(ctx, StateVerify, func(ctx context.Context) error {
		var verr error
		url, id, verr = a.composer.Verify(ctx, a.pg)
		if verr == nil {
			return nil
		}
		if a.p.cfg.AssumeSuccessOnVerificationFailure {
			a.logger.Warn("Could not verify the published post; reporting success by policy.", zap.Error(verr))
			url, id = "", ""
			return nil
		}
		return fail(schemas.ErrCodeUnknown, fmt.Errorf("post could not be verified: %w", verr))
	})
	return url, id, err
}

// do enters state, runs fn, and records the step.
func (a *attempt) do(ctx context.Context, state State, fn func(context.Context) error) error {
	a.transition(state)
	span := a.p.deps.Recorder.Step(a.runID, state.StepType(), map[string]string{
		"platform":        string(a.req.Platform),
		"content_item_id": a.req.ContentItemID,
	})
	if err := fn(ctx); err != nil {
		span.Fail(err)
		return err
	}
	span.Done(nil)
	return nil
}

func (a *attempt) transition(state State) {
	a.logger.Debug("Publish state transition.", zap.Stringer("from", a.state), zap.Stringer("to", state))
	a.state = state
}

func (a *attempt) validate(context.Context) error {
	composer, err := NewComposer(a.req.Platform)
	if err != nil {
		return fail(schemas.ErrCodeUnknown, err)
	}
	a.composer = composer

	switch a.req.Mode {
	case schemas.ModeAuto:
	case schemas.ModeReview:
		if strings.TrimSpace(a.req.ContentItemID) == "" {
			return fail(schemas.ErrCodeUnknown, errors.New("review mode requires a content item id"))
		}
	default:
		return fail(schemas.ErrCodeUnknown, fmt.Errorf("unknown publish mode %q", a.req.Mode))
	}

	if strings.TrimSpace(a.req.Text) == "" && len(a.req.MediaAssetIDs) == 0 {
		return fail(schemas.ErrCodeUnknown, errors.New("nothing to publish: text and media are both empty"))
	}
	if len(a.req.ThreadTexts) > 0 && !composer.SupportsThreads() {
		return fail(schemas.ErrCodeUnknown, fmt.Errorf("%s does not support threaded posts", a.req.Platform))
	}
	for i, item := range a.items() {
		if len(item.media) > composer.MaxMediaPerItem() {
			return fail(schemas.ErrCodeUploadFailed, fmt.Errorf("item %d has %d media attachments, %s allows %d", i, len(item.media), a.req.Platform, composer.MaxMediaPerItem()))
		}
	}
	return nil
}

type item struct {
	text  string
	media []string
}

func (a *attempt) items() []item {
	items := []item{{text: a.req.Text, media: a.req.MediaAssetIDs}}
	for i, text := range a.req.ThreadTexts {
		items = append(items, item{text: text, media: a.req.ThreadMedia(i)})
	}
	return items
}

func (a *attempt) launchAndNavigate(ctx context.Context, session *schemas.BrowserSession) error {
	// The earlier review browser for this item still owns the profile.
	if a.req.Mode == schemas.ModeReview && a.p.reviews.release(a.req.ContentItemID) {
		a.logger.Info("Released the earlier review context for this item before relaunching.")
	}
	bctx, err := a.p.deps.Factory.Launch(ctx, browser.LaunchOptions{Platform: a.req.Platform, Session: session})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	a.bctx = bctx
	a.pg = &page{
		c:       bctx,
		human:   humanoid.New(a.p.deps.Policy, bctx, bctx.Viewport(), a.logger),
		timeout: a.p.deps.ElementTimeout,
	}
	if err := bctx.Navigate(ctx, a.composer.HomeURL()); err != nil {
		return fmt.Errorf("failed to open %s: %w", a.composer.HomeURL(), err)
	}
	return a.pg.human.Pause(ctx)
}

func (a *attempt) detectBlockers(ctx context.Context) error {
	blocker, err := browser.DetectBlocker(ctx, a.bctx)
	if err != nil {
		return err
	}
	switch blocker {
	case browser.BlockerLogin:
		a.p.deps.Sessions.Invalidate(ctx, a.req.Platform, "redirected to sign-in while publishing")
		return fail(schemas.ErrCodeSessionExpired, blocker.Err())
	case browser.BlockerChallenge:
		return fail(schemas.ErrCodeCaptcha, blocker.Err())
	}
	return nil
}

// upload resolves asset ids and attaches them to item i, retrying the attach once.
func (a *attempt) upload(ctx context.Context, i int, assetIDs []string) error {
	if a.p.deps.Media == nil {
		return fail(schemas.ErrCodeUploadFailed, errors.New("no media resolver configured"))
	}
	files, err := a.p.deps.Media.Resolve(ctx, assetIDs)
	if err != nil {
		return fail(schemas.ErrCodeUploadFailed, fmt.Errorf("failed to resolve media: %w", err))
	}

	var lastErr error
	for try := 1; try <= 2; try++ {
		lastErr = a.composer.Attach(ctx, a.pg, i, files, a.p.cfg.UploadTimeout)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		a.logger.Warn("Media upload failed.", zap.Int("item", i), zap.Int("try", try), zap.Error(lastErr))
	}
	return fail(schemas.ErrCodeUploadFailed, fmt.Errorf("media upload failed after retry: %w", lastErr))
}

func (a *attempt) submit(ctx context.Context) error {
	if err := a.composer.Submit(ctx, a.pg); err != nil {
		return err
	}
	if err := a.pg.human.Wait(ctx, a.p.cfg.SettleTime); err != nil {
		return err
	}
	// A challenge can interrupt the submit itself.
	return a.detectBlockers(ctx)
}

// waitForUser polls until the operator has submitted and the compose surface closed. The
// number of polls is fixed from the timeout and interval, so the wait is bounded even when
// the context's sleep returns early.
func (a *attempt) waitForUser(ctx context.Context) error {
	interval := a.p.cfg.ReviewPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := a.p.cfg.ReviewTimeout
	polls := int(timeout / interval)
	a.logger.Info("Waiting for the operator to submit the post.", zap.Duration("timeout", timeout))

	for i := 0; i < polls; i++ {
		if err := a.bctx.Sleep(ctx, interval); err != nil {
			return fmt.Errorf("review wait cancelled: %w", err)
		}
		open, err := a.bctx.Exists(ctx, a.composer.SurfaceSelector())
		if err != nil {
			a.logger.Debug("Compose surface probe failed.", zap.Error(err))
			continue
		}
		if !open {
			a.logger.Info("Compose surface closed by the operator.", zap.Int("polls", i+1))
			return nil
		}
	}
	return fail(schemas.ErrCodeTimeout, fmt.Errorf("timed out after %s waiting for the post to be submitted", timeout))
}

// captureScreenshot saves a PNG of the current page and returns its path, or "" on failure.
func (a *attempt) captureScreenshot(ctx context.Context) string {
	if a.bctx == nil {
		return ""
	}
	shot, err := a.bctx.Screenshot(ctx)
	if err != nil {
		a.logger.Warn("Failed to capture challenge screenshot.", zap.Error(err))
		return ""
	}
	dir, err := homedir.Expand(a.p.cfg.ArtifactDir)
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		a.logger.Warn("Failed to create artifact directory.", zap.Error(err))
		return ""
	}
	key := a.req.ContentItemID
	if key == "" {
		key = a.runID
	}
	name := fmt.Sprintf("%s-%s-captcha-%s.png", a.req.Platform, sanitize(key), a.p.now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, shot, 0o600); err != nil {
		a.logger.Warn("Failed to write challenge screenshot.", zap.Error(err))
		return ""
	}
	a.logger.Info("Saved challenge screenshot.", zap.String("path", path))
	return path
}

// teardown closes Auto-mode contexts and hands Review-mode contexts to the registry.
func (a *attempt) teardown() {
	if a.bctx == nil {
		return
	}
	if a.req.Mode == schemas.ModeReview {
		a.p.reviews.hold(a.req.ContentItemID, a.bctx)
		return
	}
	if err := a.bctx.Close(); err != nil {
		a.logger.Warn("Failed to close browser context.", zap.Error(err))
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// reviewRegistry holds Review-mode contexts until the caller releases them.
type reviewRegistry struct {
	logger *zap.Logger
	mu     sync.Mutex
	open   map[string]browser.Context
}

func newReviewRegistry(logger *zap.Logger) *reviewRegistry {
	return &reviewRegistry{logger: logger, open: make(map[string]browser.Context)}
}

// hold registers c for id. An attempt releases its own earlier hold before launching, so a
// previous context is only found here when two attempts for one item overlap.
func (r *reviewRegistry) hold(id string, c browser.Context) {
	r.mu.Lock()
	prev := r.open[id]
	r.open[id] = c
	r.mu.Unlock()
	if prev != nil && prev != c {
		r.logger.Info("Replacing held review context.", zap.String("content_item_id", id))
		_ = prev.Close()
	}
}

func (r *reviewRegistry) release(id string) bool {
	r.mu.Lock()
	c, ok := r.open[id]
	delete(r.open, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := c.Close(); err != nil {
		r.logger.Warn("Failed to close review context.", zap.String("content_item_id", id), zap.Error(err))
	}
	return true
}

func (r *reviewRegistry) releaseAll() int {
	r.mu.Lock()
	held := r.open
	r.open = make(map[string]browser.Context)
	r.mu.Unlock()
	for id, c := range held {
		if err := c.Close(); err != nil {
			r.logger.Warn("Failed to close review context.", zap.String("content_item_id", id), zap.Error(err))
		}
	}
	return len(held)
}

func (r *reviewRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.open))
	for id := range r.open {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
