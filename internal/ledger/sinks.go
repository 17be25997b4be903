package ledger

import (
	"context"
	"sync"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/store"
	"go.uber.org/zap"
)

// PostgresSink writes steps to the workflow_steps table.
type PostgresSink struct {
	store *store.Store
}

// NewPostgresSink wraps a store.
func NewPostgresSink(s *store.Store) *PostgresSink {
	return &PostgresSink{store: s}
}

func (p *PostgresSink) CreateStep(ctx context.Context, rec schemas.StepRecord) (int, error) {
	return p.store.InsertStep(ctx, rec)
}

// LogSink writes steps as structured log entries. It is used when no database is configured.
type LogSink struct {
	logger *zap.Logger

	mu   sync.Mutex
	next map[string]int
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("steps"), next: make(map[string]int)}
}

func (l *LogSink) CreateStep(_ context.Context, rec schemas.StepRecord) (int, error) {
	l.mu.Lock()
	idx := l.next[rec.RunID]
	l.next[rec.RunID] = idx + 1
	l.mu.Unlock()

	fields := []zap.Field{
		zap.String("run_id", rec.RunID),
		zap.Int("index", idx),
		zap.String("step", rec.StepType),
		zap.String("status", string(rec.Status)),
		zap.Int64("duration_ms", rec.DurationMs),
	}
	if len(rec.Input) > 0 {
		fields = append(fields, zap.ByteString("input", rec.Input))
	}
	if len(rec.Output) > 0 {
		fields = append(fields, zap.ByteString("output", rec.Output))
	}
	if rec.Error != "" {
		fields = append(fields, zap.String("error", rec.Error))
	}
	l.logger.Info("Workflow step.", fields...)
	return idx, nil
}
