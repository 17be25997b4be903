package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/credentials"
	"github.com/xkilldash9x/socialpilot/internal/enrichment"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"github.com/xkilldash9x/socialpilot/internal/store"
)

// InitializeDBPool connects to PostgreSQL and verifies the connection.
func InitializeDBPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	// One operation drives one browser, so the pool stays small.
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	logger.Info("Connected to PostgreSQL.", zap.String("host", poolConfig.ConnConfig.Host))
	return pool, nil
}

// InitializeVault builds the session vault over the configured backend. The postgres
// backend requires db.
func InitializeVault(cfg config.SessionConfig, db *store.Store) (*credentials.Vault, error) {
	var backend credentials.Backend
	switch cfg.Backend {
	case "", "file":
		fb, err := credentials.NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, err
		}
		backend = fb
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("session backend %q requires database.url", cfg.Backend)
		}
		backend = credentials.NewPostgresBackend(db)
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}

	key, err := credentials.LoadKey(cfg.Key, cfg.Dir)
	if err != nil {
		return nil, err
	}
	return credentials.NewVault(key, backend)
}

// InitializeRecorder starts the step recorder, writing to Postgres when db is set and to
// the log otherwise.
func InitializeRecorder(db *store.Store, logger *zap.Logger) *ledger.Recorder {
	var sink ledger.Sink
	if db != nil {
		sink = ledger.NewPostgresSink(db)
	} else {
		logger.Debug("No database configured; workflow steps go to the log only.")
		sink = ledger.NewLogSink(logger)
	}
	return ledger.NewRecorder(sink, logger, 0)
}

// InitializeExtractor creates the profile extractor. Without an API key enrichment is
// disabled and a nil extractor is returned with no error.
func InitializeExtractor(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (enrichment.Extractor, error) {
	if cfg.APIKey == "" {
		logger.Info("No LLM API key configured; profile enrichment is disabled.")
		return nil, nil
	}
	extractor, err := enrichment.NewGenAIExtractor(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile extractor: %w", err)
	}
	return extractor, nil
}
