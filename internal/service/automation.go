// Package service assembles the automation engine from configuration and exposes its
// function-style entry points to the CLI and to workflow callers.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/engagement"
	"github.com/xkilldash9x/socialpilot/internal/enrichment"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"github.com/xkilldash9x/socialpilot/internal/publisher"
	"github.com/xkilldash9x/socialpilot/internal/scraper"
	"github.com/xkilldash9x/socialpilot/internal/sessionstore"
)

// ErrEnrichmentDisabled is returned by EnrichProfile when no extractor is configured.
var ErrEnrichmentDisabled = errors.New("profile enrichment is disabled: set llm.api_key")

// Automation is the entry point for every browser automation operation. Each operation
// owns its own browser context; none are shared between concurrent calls.
type Automation struct {
	c         *Components
	publisher *publisher.Publisher
	engager   *engagement.Executor
	logger    *zap.Logger
}

// RunOption adjusts a single scrape or engagement run.
type RunOption func(*runOptions)

type runOptions struct {
	antiDetection antidetect.Config
}

// WithAntiDetection overrides the configured anti-detection profile for one run. Zero
// fields keep their configured values.
func WithAntiDetection(override antidetect.Config) RunOption {
	return func(o *runOptions) { o.antiDetection = override }
}

// policyFor returns the shared policy, or a run-scoped one when opts override it.
func (a *Automation) policyFor(opts []RunOption) (*antidetect.Policy, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.antiDetection == (antidetect.Config{}) {
		return a.c.Policy, nil
	}
	merged := a.c.Policy.Config().Merge(o.antiDetection)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anti-detection override: %w", err)
	}
	a.logger.Debug("Using a run-scoped anti-detection profile.",
		zap.Int("batch_limit", merged.BatchLimit),
		zap.Duration("min_delay", merged.MinDelay),
		zap.Duration("max_delay", merged.MaxDelay))
	return antidetect.New(merged), nil
}

// NewAutomation wires the publisher and engagement executor over c.
func NewAutomation(c *Components, logger *zap.Logger) *Automation {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := c.Config
	return &Automation{
		c: c,
		publisher: publisher.New(cfg.Publish(), publisher.Deps{
			Sessions: c.Sessions,
			Factory:  c.Factory,
			Policy:   c.Policy,
			Media:    c.Media,
			Recorder: c.Recorder,
			Logger:   logger,
		}),
		engager: engagement.New(cfg.Engagement(), engagement.Deps{
			Sessions: c.Sessions,
			Factory:  c.Factory,
			Policy:   c.Policy,
			Recorder: c.Recorder,
			Logger:   logger,
		}),
		logger: logger.Named("automation"),
	}
}

// SetupSession opens a visible browser for the operator to sign in and stores the session.
func (a *Automation) SetupSession(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error) {
	return a.c.Sessions.Setup(ctx, p)
}

// ValidateSession reports whether the stored session still signs in.
func (a *Automation) ValidateSession(ctx context.Context, p schemas.Platform) bool {
	return a.c.Sessions.Validate(ctx, p)
}

// SessionStatus probes the stored session and reports its state.
func (a *Automation) SessionStatus(ctx context.Context, p schemas.Platform) sessionstore.Status {
	return a.c.Sessions.Check(ctx, p)
}

// ClearSession deletes the stored session.
func (a *Automation) ClearSession(ctx context.Context, p schemas.Platform) error {
	return a.c.Sessions.Clear(ctx, p)
}

// ScrapeProfile reads a single profile.
func (a *Automation) ScrapeProfile(ctx context.Context, p schemas.Platform, target string) (*schemas.RawProfileData, error) {
	s, err := a.newScraper(p, a.c.Policy)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ScrapeProfile(ctx, target)
}

// ScrapeProfiles reads targets in one paced batch sharing one browser context.
func (a *Automation) ScrapeProfiles(ctx context.Context, p schemas.Platform, targets []string, opts ...RunOption) ([]schemas.ProfileResult, error) {
	policy, err := a.policyFor(opts)
	if err != nil {
		return nil, err
	}
	s, err := a.newScraper(p, policy)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ScrapeProfiles(ctx, targets)
}

func (a *Automation) newScraper(p schemas.Platform, policy *antidetect.Policy) (*scraper.Scraper, error) {
	extractor, err := scraper.NewExtractor(p)
	if err != nil {
		return nil, err
	}
	runner := scraper.NewRunner(scraper.RunnerConfig{
		Platform: p,
		Sessions: a.c.Sessions,
		Factory:  a.c.Factory,
		Policy:   policy,
		Recorder: a.c.Recorder,
		RunID:    ledger.NewRunID(),
		Logger:   a.logger,
	})
	return scraper.New(runner, extractor)
}

// Publish runs one publish attempt. It never returns an error.
func (a *Automation) Publish(ctx context.Context, req schemas.PublishRequest) schemas.PublishResult {
	return a.publisher.Publish(ctx, req)
}

// ReleaseReview closes the Review-mode browser held for contentItemID.
func (a *Automation) ReleaseReview(contentItemID string) bool {
	return a.publisher.Release(contentItemID)
}

// PendingReviews lists content items whose Review-mode browsers are still open.
func (a *Automation) PendingReviews() []string {
	return a.publisher.Pending()
}

// Engage performs one engagement action.
func (a *Automation) Engage(ctx context.Context, req schemas.EngagementRequest) schemas.EngagementResult {
	return a.engager.Engage(ctx, req)
}

// EngageBatch performs actions in one paced batch.
func (a *Automation) EngageBatch(ctx context.Context, reqs []schemas.EngagementRequest, opts ...RunOption) ([]schemas.EngagementResult, error) {
	policy, err := a.policyFor(opts)
	if err != nil {
		return nil, err
	}
	return a.engager.WithPolicy(policy).EngageBatch(ctx, reqs)
}

// EnrichProfile extracts structured fields from raw and returns the fields that may be
// written to contact without overwriting it.
func (a *Automation) EnrichProfile(ctx context.Context, contact enrichment.Contact, raw *schemas.RawProfileData) (enrichment.Update, *schemas.ParsedProfileData, error) {
	if a.c.Extractor == nil {
		return nil, nil, ErrEnrichmentDisabled
	}
	parsed, err := a.c.Extractor.Extract(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("profile enrichment failed: %w", err)
	}
	update := enrichment.Merge(contact, parsed, a.c.Config.LLM().MinConfidence)
	a.logger.Debug("Profile enriched.",
		zap.Float64("confidence", parsed.Confidence),
		zap.Int("fields", len(update)))
	return update, parsed, nil
}

// Shutdown closes every held Review-mode browser and then the shared components.
func (a *Automation) Shutdown(ctx context.Context) error {
	if n := a.publisher.ReleaseAll(); n > 0 {
		a.logger.Info("Closed browsers left open for review.", zap.Int("count", n))
	}
	return a.c.Shutdown(ctx, a.logger)
}
