// Package ledger records one entry per meaningful automation step. Writes are fire and
// forget: they are queued and persisted by a background worker, never read back, and never
// transactional with the browser action they describe.
package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Sink persists step records. CreateStep assigns and returns the next index for the run.
type Sink interface {
	CreateStep(ctx context.Context, rec schemas.StepRecord) (int, error)
}

// NewRunID returns an identifier for a new automation run.
func NewRunID() string {
	return uuid.NewString()
}

// Recorder queues step records for a single background writer. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time

	queue chan schemas.StepRecord
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the writer goroutine. Call Close to drain and stop it.
func NewRecorder(sink Sink, logger *zap.Logger, queueSize int) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		sink:   sink,
		logger: logger.Named("ledger"),
		now:    time.Now,
		queue:  make(chan schemas.StepRecord, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		idx, err := r.sink.CreateStep(ctx, rec)
		cancel()
		if err != nil {
			r.logger.Warn("Failed to record step.",
				zap.String("run_id", rec.RunID),
				zap.String("step", rec.StepType),
				zap.Error(err))
			continue
		}
		r.logger.Debug("Step recorded.", zap.String("run_id", rec.RunID), zap.Int("index", idx), zap.String("step", rec.StepType))
	}
}

// Step starts timing a step of a run. Finish it with Done, Fail or Skip.
func (r *Recorder) Step(runID, stepType string, input interface{}) *Span {
	s := &Span{recorder: r, runID: runID, stepType: stepType}
	if r == nil {
		return s
	}
	s.started = r.now()
	s.input = r.encode(stepType, input)
	return s
}

// Close stops accepting records and waits until the queue is drained or ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) enqueue(rec schemas.StepRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Debug("Recorder closed, dropping step.", zap.String("step", rec.StepType))
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("Step queue full, dropping step.", zap.String("run_id", rec.RunID), zap.String("step", rec.StepType))
	}
}

func (r *Recorder) encode(stepType string, v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("Step payload is not JSON encodable.", zap.String("step", stepType), zap.Error(err))
		return nil
	}
	return data
}

// Span is one in-flight step. Only the first of Done, Fail or Skip has an effect.
type Span struct {
	recorder *Recorder
	runID    string
	stepType string
	input    json.RawMessage
	started  time.Time
	once     sync.Once
}

// Done records the step as completed.
func (s *Span) Done(output interface{}) {
	s.finish(schemas.StepCompleted, output, "")
}

// Fail records the step as failed. A nil error is recorded without a message.
func (s *Span) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.finish(schemas.StepFailed, nil, msg)
}

// Skip records the step as skipped with a reason.
func (s *Span) Skip(reason string) {
	s.finish(schemas.StepSkipped, nil, reason)
}

func (s *Span) finish(status schemas.StepStatus, output interface{}, errMsg string) {
	if s == nil || s.recorder == nil {
		return
	}
	s.once.Do(func() {
		r := s.recorder
		end := r.now()
		r.enqueue(schemas.StepRecord{
			RunID:      s.runID,
			StepType:   s.stepType,
			Status:     status,
			Input:      s.input,
			Output:     r.encode(s.stepType, output),
			Error:      errMsg,
			DurationMs: end.Sub(s.started).Milliseconds(),
			CreatedAt:  end.UTC(),
		})
	})
}
