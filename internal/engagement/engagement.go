// Package engagement performs like, retweet and reply actions on existing posts through a
// stored session. Every request gets its own browser context and a structured result, so a
// batch carries on past individual failures.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/errclass"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"github.com/xkilldash9x/socialpilot/internal/platform"
	"go.uber.org/zap"
)

// Sessions is the read side of the session store plus the ability to invalidate.
type Sessions interface {
	Load(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error)
	Invalidate(ctx context.Context, p schemas.Platform, reason string)
}

// Deps are the collaborators an Executor drives.
type Deps struct {
	Sessions Sessions
	Factory  browser.Factory
	Policy   *antidetect.Policy
	Recorder *ledger.Recorder
	// ElementTimeout bounds each wait for a control to appear.
	ElementTimeout time.Duration
	Logger         *zap.Logger
}

// Executor runs engagement actions.
type Executor struct {
	cfg    config.EngagementConfig
	deps   Deps
	logger *zap.Logger
}

// New creates an Executor.
func New(cfg config.EngagementConfig, deps Deps) *Executor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ElementTimeout <= 0 {
		deps.ElementTimeout = 15 * time.Second
	}
	return &Executor{cfg: cfg, deps: deps, logger: deps.Logger.Named("engagement")}
}

// WithPolicy returns a copy of e that paces and bounds its runs with policy.
func (e *Executor) WithPolicy(policy *antidetect.Policy) *Executor {
	clone := *e
	clone.deps.Policy = policy
	return &clone
}

// Engage performs one action. It never returns an error: failures, including a
// recovered panic, are reported in the result. An action that was already applied
// (a post liked earlier) succeeds with Skipped set.
func (e *Executor) Engage(ctx context.Context, req schemas.EngagementRequest) schemas.EngagementResult {
	return e.engage(ctx, ledger.NewRunID(), req)
}

// EngageBatch performs reqs in order, paced by the policy's hourly limiter. Per-item
// failures are reported in the results and the batch continues. The batch ceiling and
// context cancellation stop the loop and are returned with the results gathered so far.
func (e *Executor) EngageBatch(ctx context.Context, reqs []schemas.EngagementRequest) ([]schemas.EngagementResult, error) {
	batch := e.deps.Policy.NewBatchCounter()
	limiter := e.deps.Policy.Limiter()
	runID := ledger.NewRunID()

	results := make([]schemas.EngagementResult, 0, len(reqs))
	for _, req := range reqs {
		if err := batch.Check(); err != nil {
			e.logger.Warn("Engagement batch ceiling reached.", zap.Int("completed", batch.Count()), zap.Error(err))
			return results, err
		}
		if err := limiter.Wait(ctx); err != nil {
			return results, fmt.Errorf("engagement pacing interrupted: %w", err)
		}
		batch.Record()
		results = append(results, e.engage(ctx, runID, req))
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Executor) engage(ctx context.Context, runID string, req schemas.EngagementRequest) (res schemas.EngagementResult) {
	logger := e.logger.With(
		zap.String("platform", string(req.Platform)),
		zap.String("action", string(req.Action)),
		zap.String("post_url", req.PostURL))
	span := e.deps.Recorder.Step(runID, "engage."+string(req.Action), req)

	var c browser.Context
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Engagement panicked.", zap.Any("panic", r), zap.Stack("stack"))
			res = failed(req, fmt.Errorf("internal error: %v", r))
		}
		if c != nil {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close browser context.", zap.Error(err))
			}
		}
		switch {
		case res.Skipped:
			span.Skip("already applied")
		case res.Success:
			span.Done(nil)
		default:
			span.Fail(errors.New(res.Error))
		}
	}()

	s, err := lookup(req.Platform, req.Action)
	if err != nil {
		return failed(req, err)
	}
	desc, err := platform.Lookup(req.Platform)
	if err != nil {
		return failed(req, err)
	}
	if !desc.OwnsURL(req.PostURL) {
		return failed(req, fmt.Errorf("post url %q does not belong to %s", req.PostURL, req.Platform))
	}
	if s.editor != "" && strings.TrimSpace(req.ReplyText) == "" {
		return failed(req, errors.New("reply text is empty"))
	}

	session, err := e.deps.Sessions.Load(ctx, req.Platform)
	if err != nil {
		return failed(req, fmt.Errorf("no stored session: %w", err))
	}
	c, err = e.deps.Factory.Launch(ctx, browser.LaunchOptions{Platform: req.Platform, Session: session})
	if err != nil {
		return failed(req, err)
	}
	human := humanoid.New(e.deps.Policy, c, c.Viewport(), logger)

	if err := c.Navigate(ctx, req.PostURL); err != nil {
		return failed(req, err)
	}
	blocker, err := browser.DetectBlocker(ctx, c)
	if err != nil {
		return failed(req, err)
	}
	if blocker == browser.BlockerLogin {
		e.deps.Sessions.Invalidate(ctx, req.Platform, "redirected to sign-in during engagement")
	}
	if err := blocker.Err(); err != nil {
		return failed(req, err)
	}
	if err := human.Wait(ctx, e.cfg.SettleTime); err != nil {
		return failed(req, err)
	}

	skipped, err := e.perform(ctx, c, human, s, req.ReplyText)
	if err != nil {
		return failed(req, err)
	}
	logger.Info("Engagement complete.", zap.Bool("skipped", skipped))
	return schemas.EngagementResult{PostURL: req.PostURL, Action: req.Action, Success: true, Skipped: skipped}
}

// perform runs the interaction described by s and reports whether it had already been
// applied.
func (e *Executor) perform(ctx context.Context, c browser.Context, human *humanoid.Humanoid, s steps, text string) (bool, error) {
	timeout := e.deps.ElementTimeout
	if s.applied != "" {
		done, err := c.Exists(ctx, s.applied)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}

	if err := waitAndClick(ctx, c, human, s.trigger, timeout); err != nil {
		return false, err
	}
	if s.confirm != "" {
		if err := waitAndClick(ctx, c, human, s.confirm, timeout); err != nil {
			return false, err
		}
	}
	if s.editor != "" {
		if err := c.WaitVisible(ctx, s.editor, timeout); err != nil {
			return false, fmt.Errorf("reply editor did not open: %w", err)
		}
		if err := human.Type(ctx, s.editor, text); err != nil {
			return false, err
		}
		if err := waitAndClick(ctx, c, human, s.submit, timeout); err != nil {
			return false, err
		}
	}
	if s.applied != "" {
		if err := c.WaitVisible(ctx, s.applied, timeout); err != nil {
			return false, fmt.Errorf("action was not confirmed by the page: %w", err)
		}
	}
	return false, human.Pause(ctx)
}

func waitAndClick(ctx context.Context, c browser.Context, human *humanoid.Humanoid, selector string, timeout time.Duration) error {
	if err := c.WaitVisible(ctx, selector, timeout); err != nil {
		return fmt.Errorf("%s not found: %w", selector, err)
	}
	return human.Click(ctx, selector)
}

func failed(req schemas.EngagementRequest, err error) schemas.EngagementResult {
	return schemas.EngagementResult{
		PostURL:   req.PostURL,
		Action:    req.Action,
		Error:     err.Error(),
		ErrorCode: errclass.PublishCode(err.Error()),
	}
}
