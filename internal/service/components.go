package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/enrichment"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"github.com/xkilldash9x/socialpilot/internal/media"
	"github.com/xkilldash9x/socialpilot/internal/sessionstore"
	"github.com/xkilldash9x/socialpilot/internal/store"
)

// Components holds the long-lived collaborators every automation entry point shares.
type Components struct {
	Config   config.Interface
	Policy   *antidetect.Policy
	Factory  browser.Factory
	Sessions *sessionstore.Store
	Media    media.Resolver
	Recorder *ledger.Recorder
	// Extractor is nil when enrichment is disabled.
	Extractor enrichment.Extractor
	// Store and DBPool are nil without a database.
	Store  *store.Store
	DBPool *pgxpool.Pool
}

// NewComponents builds every component from configuration.
func NewComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (c *Components, err error) {
	c = &Components{Config: cfg}
	defer func() {
		if err != nil {
			c.closeAll(context.Background(), logger)
			c = nil
		}
	}()

	if url := cfg.Database().URL; url != "" {
		if c.DBPool, err = InitializeDBPool(ctx, cfg.Database(), logger); err != nil {
			return c, err
		}
		if c.Store, err = store.New(ctx, c.DBPool, logger); err != nil {
			return c, err
		}
		if err = c.Store.EnsureSchema(ctx); err != nil {
			return c, err
		}
	}

	vault, err := InitializeVault(cfg.Session(), c.Store)
	if err != nil {
		return c, err
	}
	resolver, err := media.NewDirResolver(cfg.Media().Root, logger)
	if err != nil {
		return c, err
	}
	if c.Extractor, err = InitializeExtractor(ctx, cfg.LLM(), logger); err != nil {
		return c, err
	}

	c.Policy = antidetect.New(cfg.AntiDetection())
	c.Factory = browser.NewFactory(cfg.Browser(), c.Policy, logger)
	c.Sessions = sessionstore.New(vault, c.Factory, cfg.Session(), logger)
	c.Media = resolver
	c.Recorder = InitializeRecorder(c.Store, logger)
	return c, nil
}

// Shutdown drains the step recorder and closes the database pool. It does not touch
// browser contexts; Automation.Shutdown releases those first.
func (c *Components) Shutdown(ctx context.Context, logger *zap.Logger) error {
	return c.closeAll(ctx, logger)
}

func (c *Components) closeAll(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	if c.Recorder != nil {
		if err := c.Recorder.Close(ctx); err != nil {
			logger.Warn("Step recorder did not drain before shutdown.", zap.Error(err))
			errs = append(errs, err)
		} else {
			logger.Debug("Step recorder drained.")
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return errors.Join(errs...)
}
