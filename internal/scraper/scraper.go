package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/platform"
	"go.uber.org/zap"
)

// Scraper composes the shared Runner with a platform Extractor.
type Scraper struct {
	runner    *Runner
	extractor Extractor
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a scraper for the runner's platform.
func New(runner *Runner, extractor Extractor) (*Scraper, error) {
	if runner.cfg.Platform != extractor.Platform() {
		return nil, fmt.Errorf("extractor for %s cannot drive a %s runner", extractor.Platform(), runner.cfg.Platform)
	}
	return &Scraper{runner: runner, extractor: extractor, logger: runner.logger, now: time.Now}, nil
}

// Runner exposes the shared capability, mostly for tests and batch accounting.
func (s *Scraper) Runner() *Runner { return s.runner }

// ValidateSession opens the platform home and checks for the signed-in surface. A sign-in
// redirect invalidates the stored session and reports false.
func (s *Scraper) ValidateSession(ctx context.Context) (bool, error) {
	if err := s.runner.Init(ctx); err != nil {
		return false, err
	}
	// Validation is not counted, but it never navigates past the ceiling either.
	if err := s.runner.batch.Check(); err != nil {
		return false, err
	}
	c := s.runner.Context()
	desc := platform.MustLookup(s.extractor.Platform())
	if err := c.Navigate(ctx, desc.HomeURL); err != nil {
		return false, fmt.Errorf("failed to open %s home: %w", desc.Platform, err)
	}
	blocker, err := browser.DetectBlocker(ctx, c)
	if err != nil {
		return false, err
	}
	switch blocker {
	case browser.BlockerLogin:
		s.runner.cfg.Sessions.Invalidate(ctx, desc.Platform, "redirected to sign-in during scraper validation")
		return false, nil
	case browser.BlockerChallenge:
		return false, blocker.Err()
	}
	return s.extractor.ValidateSession(ctx, c)
}

// ScrapeProfile visits one profile and returns what was read from it.
func (s *Scraper) ScrapeProfile(ctx context.Context, target string) (*schemas.RawProfileData, error) {
	profileURL, err := s.extractor.ProfileURL(target)
	if err != nil {
		return nil, err
	}
	if err := s.runner.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.runner.NavigateWithDelay(ctx, profileURL); err != nil {
		return nil, err
	}
	raw, err := s.extractor.ExtractProfile(ctx, s.runner.Context(), s.runner.ContentTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", profileURL, err)
	}
	raw.ProfileURL = profileURL
	raw.ScrapedAt = s.now().UTC()
	return raw, nil
}

// ScrapeProfiles scrapes targets in order. Per-target failures are reported in the result
// and the loop continues. Reaching the batch ceiling, losing the session, or cancellation
// stops the loop; the results gathered so far are returned with the error.
func (s *Scraper) ScrapeProfiles(ctx context.Context, targets []string) ([]schemas.ProfileResult, error) {
	results := make([]schemas.ProfileResult, 0, len(targets))
	for _, target := range targets {
		raw, err := s.ScrapeProfile(ctx, target)
		if err == nil {
			results = append(results, schemas.ProfileResult{URL: raw.ProfileURL, Profile: raw})
			continue
		}
		if isFatal(ctx, err) {
			s.logger.Warn("Stopping scrape batch.", zap.Int("completed", len(results)), zap.Error(err))
			return results, err
		}
		s.logger.Info("Profile scrape failed, continuing.", zap.String("target", target), zap.Error(err))
		results = append(results, schemas.ProfileResult{
			URL:   target,
			Error: fmt.Sprintf("Failed to process %s: %v", target, err),
		})
	}
	return results, nil
}

// Close tears down the browser context. It is safe to call more than once.
func (s *Scraper) Close() error {
	return s.runner.Close()
}

func isFatal(ctx context.Context, err error) bool {
	var limit *antidetect.BatchLimitError
	switch {
	case errors.As(err, &limit):
		return true
	case errors.Is(err, browser.ErrLoginRedirect), errors.Is(err, browser.ErrChallenge):
		return true
	case ctx.Err() != nil:
		return true
	case errors.Is(err, browser.ErrClosed), errors.Is(err, ErrNotInitialized):
		return true
	}
	var initErr *initError
	return errors.As(err, &initErr)
}
