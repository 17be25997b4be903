// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"go.uber.org/zap"
)

// Executor defines the low-level browser primitives the Humanoid drives.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, keys string) error
	// DispatchWheel emits a single mouse wheel event at viewport coordinates (x, y).
	DispatchWheel(ctx context.Context, x, y float64, deltaY int) error
}

// Humanoid executes the anti-detection policy against a browser: every click, keystroke
// and scroll goes through it so the cadence looks like a person at a keyboard.
type Humanoid struct {
	policy   *antidetect.Policy
	executor Executor
	viewport schemas.Viewport
	logger   *zap.Logger
}

// New creates a Humanoid bound to one browser context.
func New(policy *antidetect.Policy, executor Executor, viewport schemas.Viewport, logger *zap.Logger) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Humanoid{
		policy:   policy,
		executor: executor,
		viewport: viewport,
		logger:   logger.Named("humanoid"),
	}
}

// Click hesitates for one keystroke interval and then clicks the element.
func (h *Humanoid) Click(ctx context.Context, selector string) error {
	if err := h.executor.Sleep(ctx, h.policy.KeyDelay()); err != nil {
		return err
	}
	if err := h.executor.Click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to click '%s': %w", selector, err)
	}
	return nil
}

// Type focuses the element and then sends text one character at a time with a
// policy-drawn pause between keystrokes.
func (h *Humanoid) Type(ctx context.Context, selector string, text string) error {
	if err := h.Click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to click/focus selector '%s': %w", selector, err)
	}
	return h.TypeFocused(ctx, text)
}

// TypeFocused types into whatever element currently has focus.
func (h *Humanoid) TypeFocused(ctx context.Context, text string) error {
	runes := []rune(text)
	for i, r := range runes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.executor.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to send key '%c': %w", r, err)
		}
		if i < len(runes)-1 {
			if err := h.executor.Sleep(ctx, h.policy.KeyDelay()); err != nil {
				return err
			}
		}
	}
	h.logger.Debug("Typed text.", zap.Int("chars", len(runes)))
	return nil
}

// Scroll performs one policy scroll plan as wheel events at a point inside the middle
// of the viewport.
func (h *Humanoid) Scroll(ctx context.Context) error {
	plan := h.policy.ScrollPlan()
	x, y := h.cursorPoint()
	for _, step := range plan {
		if err := h.executor.DispatchWheel(ctx, x, y, step.DeltaY); err != nil {
			return fmt.Errorf("humanoid: wheel event failed: %w", err)
		}
		if err := h.executor.Sleep(ctx, step.Pause); err != nil {
			return err
		}
	}
	h.logger.Debug("Scrolled.", zap.Int("steps", len(plan)), zap.Int("distance", plan.Distance()))
	return nil
}

// Pause waits for one inter-action delay.
func (h *Humanoid) Pause(ctx context.Context) error {
	return h.executor.Sleep(ctx, h.policy.Delay())
}

// Wait sleeps for a fixed settle duration.
func (h *Humanoid) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return h.executor.Sleep(ctx, d)
}

// cursorPoint picks a point in the central half of the viewport.
func (h *Humanoid) cursorPoint() (float64, float64) {
	w, hgt := h.viewport.Width, h.viewport.Height
	if w <= 0 || hgt <= 0 {
		return 400, 300
	}
	x := w/4 + h.policy.Intn(w/2+1)
	y := hgt/4 + h.policy.Intn(hgt/2+1)
	return float64(x), float64(y)
}
