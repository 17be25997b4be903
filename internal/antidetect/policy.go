// Package antidetect produces the randomized pacing every browser action is wrapped in:
// inter-action delays, keystroke cadence, scroll plans, viewport choice, and the batch
// and hourly ceilings that bound a run.
package antidetect

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"golang.org/x/time/rate"
)

// Config is the anti-detection tuning for a run. It is never mutated once a Policy is built.
type Config = config.AntiDetectionConfig

// DefaultConfig returns the shipped anti-detection defaults.
func DefaultConfig() Config {
	return config.NewDefaultConfig().AntiDetection()
}

// viewportPool holds common desktop resolutions so a context never advertises an odd size.
var viewportPool = []schemas.Viewport{
	{Width: 1920, Height: 1080},
	{Width: 1536, Height: 864},
	{Width: 1440, Height: 900},
	{Width: 1366, Height: 768},
	{Width: 1280, Height: 800},
	{Width: 1680, Height: 1050},
}

const (
	minScrollSteps = 3
	maxScrollSteps = 7
	minScrollPause = 100 * time.Millisecond
	maxScrollPause = 400 * time.Millisecond
)

// ScrollStep is one wheel event and the pause that follows it.
type ScrollStep struct {
	DeltaY int
	Pause  time.Duration
}

// ScrollPlan is an ordered sequence of wheel events.
type ScrollPlan []ScrollStep

// Distance is the total vertical distance covered by the plan.
func (p ScrollPlan) Distance() int {
	total := 0
	for _, s := range p {
		total += s.DeltaY
	}
	return total
}

// Policy draws randomized values from a Config. It is safe for concurrent use.
type Policy struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Policy seeded from the clock.
func New(cfg Config) *Policy {
	return NewWithSource(cfg, rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource creates a Policy with a caller-supplied random source, for deterministic tests.
func NewWithSource(cfg Config, src rand.Source) *Policy {
	return &Policy{cfg: cfg, rng: rand.New(src)}
}

// Config returns the tuning the policy was built with.
func (p *Policy) Config() Config { return p.cfg }

// Delay returns an inter-action pause drawn from a normal distribution centred on the
// midpoint of [MinDelay, MaxDelay], with the range spanning six standard deviations,
// clamped to the range.
func (p *Policy) Delay() time.Duration {
	return p.normalBetween(p.cfg.MinDelay, p.cfg.MaxDelay)
}

// KeyDelay returns the pause between two keystrokes.
func (p *Policy) KeyDelay() time.Duration {
	return p.normalBetween(p.cfg.KeyDelayMin, p.cfg.KeyDelayMax)
}

// ScrollPlan returns 3 to 7 downward wheel steps whose distances sum to a value in
// [ScrollMin, ScrollMax], each followed by a 100-400ms pause.
func (p *Policy) ScrollPlan() ScrollPlan {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps := minScrollSteps + p.rng.Intn(maxScrollSteps-minScrollSteps+1)
	total := p.cfg.ScrollMin
	if span := p.cfg.ScrollMax - p.cfg.ScrollMin; span > 0 {
		total += p.rng.Intn(span + 1)
	}
	// Every step moves the page by at least one pixel.
	if steps > total {
		steps = total
	}

	weights := make([]float64, steps)
	var sum float64
	for i := range weights {
		weights[i] = 0.5 + p.rng.Float64()
		sum += weights[i]
	}

	plan := make(ScrollPlan, steps)
	remaining := total
	for i := range plan {
		delta := remaining
		if i < steps-1 {
			delta = int(math.Round(float64(total) * weights[i] / sum))
			if reserve := remaining - (steps - 1 - i); delta > reserve {
				delta = reserve
			}
			if delta < 1 {
				delta = 1
			}
		}
		remaining -= delta
		plan[i] = ScrollStep{
			DeltaY: delta,
			Pause:  minScrollPause + time.Duration(p.rng.Int63n(int64(maxScrollPause-minScrollPause)+1)),
		}
	}
	return plan
}

// Viewport picks one of the common desktop resolutions.
func (p *Policy) Viewport() schemas.Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return viewportPool[p.rng.Intn(len(viewportPool))]
}

// Intn exposes the policy's generator for callers that need a bounded random choice,
// such as a click offset inside an element.
func (p *Policy) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

// Limiter returns a fresh limiter admitting ActionsPerHour actions per hour.
func (p *Policy) Limiter() *rate.Limiter {
	per := p.cfg.ActionsPerHour
	if per <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(per)), 1)
}

// NewBatchCounter returns a counter bounded by this policy's batch ceiling.
func (p *Policy) NewBatchCounter() *BatchCounter {
	return NewBatchCounter(p.cfg.BatchLimit, p.cfg.BatchCooldown)
}

// normalBetween draws with the Box-Muller transform.
func (p *Policy) normalBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	u1 := 1 - p.rng.Float64() // (0, 1], keeps Log finite
	u2 := p.rng.Float64()
	p.mu.Unlock()

	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	mean := float64(lo+hi) / 2
	sd := float64(hi-lo) / 6

	v := time.Duration(mean + z*sd)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
