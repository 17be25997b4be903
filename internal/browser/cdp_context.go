// internal/browser/cdp_context.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"go.uber.org/zap"
)

// cdpContext implements Context over a dedicated chromedp browser.
type cdpContext struct {
	platform schemas.Platform
	viewport schemas.Viewport
	logger   *zap.Logger

	// browserCtx carries the CDP target. It is detached from the launching request so a
	// context can outlive the call that created it.
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	release       func()

	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

var _ Context = (*cdpContext)(nil)

func (c *cdpContext) Platform() schemas.Platform { return c.platform }
func (c *cdpContext) Viewport() schemas.Viewport { return c.viewport }

// run executes actions on the browser target, cancelled when either ctx or the browser ends.
func (c *cdpContext) run(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	opCtx, cancel := context.WithCancel(c.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		opCtx, cancelDeadline = context.WithDeadline(opCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *cdpContext) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	case <-t.C:
		return nil
	}
}

func (c *cdpContext) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (c *cdpContext) SendKeys(ctx context.Context, keys string) error {
	return c.run(ctx, chromedp.KeyEvent(keys))
}

func (c *cdpContext) DispatchWheel(ctx context.Context, x, y float64, deltaY int) error {
	return c.run(ctx, input.DispatchMouseEvent(input.MouseWheel, x, y).
		WithDeltaX(0).
		WithDeltaY(float64(deltaY)))
}

func (c *cdpContext) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if c.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, c.navTimeout)
		defer cancel()
	}
	if err := c.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (c *cdpContext) Reload(ctx context.Context) error {
	return c.run(ctx, chromedp.Reload())
}

func (c *cdpContext) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := c.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (c *cdpContext) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := c.Evaluate(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &found)
	return found, err
}

func (c *cdpContext) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (c *cdpContext) Text(ctx context.Context, selector string) (string, error) {
	var text *string
	expr := fmt.Sprintf(`(() => { const n = document.querySelector(%s); return n ? n.innerText : null; })()`, jsString(selector))
	if err := c.Evaluate(ctx, expr, &text); err != nil {
		return "", err
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

func (c *cdpContext) TextAll(ctx context.Context, selector string, limit int) ([]string, error) {
	var texts []string
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).slice(0, %d).map(n => n.innerText)`, jsString(selector), limit)
	if err := c.Evaluate(ctx, expr, &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

func (c *cdpContext) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var value *string
	expr := fmt.Sprintf(`(() => { const n = document.querySelector(%s); return n ? n.getAttribute(%s) : null; })()`, jsString(selector), jsString(name))
	if err := c.Evaluate(ctx, expr, &value); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (c *cdpContext) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return c.run(ctx, chromedp.Evaluate(expression, out))
}

func (c *cdpContext) SetUploadFiles(ctx context.Context, selector string, files []string) error {
	return c.run(ctx, chromedp.SetUploadFiles(selector, files, chromedp.ByQuery))
}

func (c *cdpContext) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *cdpContext) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var cookies []*network.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return fromNetworkCookies(cookies), nil
}

func (c *cdpContext) UserAgent(ctx context.Context) (string, error) {
	var ua string
	if err := c.Evaluate(ctx, `navigator.userAgent`, &ua); err != nil {
		return "", err
	}
	return ua, nil
}

// Close shuts the browser down gracefully, then releases the allocator and profile lock.
func (c *cdpContext) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := chromedp.Cancel(c.browserCtx); err != nil {
			c.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		c.cancelBrowser()
		c.cancelAlloc()
		if c.release != nil {
			c.release()
		}
		c.logger.Debug("Browser context closed.")
	})
	return c.closeErr
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
