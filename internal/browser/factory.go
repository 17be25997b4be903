// internal/browser/factory.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser/stealth"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// CDPFactory launches Chrome through chromedp, one browser per Context, on a persistent
// per-platform profile directory.
type CDPFactory struct {
	cfg    config.BrowserConfig
	policy *antidetect.Policy
	logger *zap.Logger

	mu    sync.Mutex
	locks map[schemas.Platform]*semaphore.Weighted

	// alive is swapped in tests.
	alive func(pid int) bool
}

var _ Factory = (*CDPFactory)(nil)

// NewFactory creates a CDPFactory.
func NewFactory(cfg config.BrowserConfig, policy *antidetect.Policy, logger *zap.Logger) *CDPFactory {
	return &CDPFactory{
		cfg:    cfg,
		policy: policy,
		logger: logger.Named("browser"),
		locks:  make(map[schemas.Platform]*semaphore.Weighted),
		alive:  processAlive,
	}
}

// lockFor returns the semaphore guarding a platform's profile directory. Chrome refuses
// to share a user-data directory, so launches on the same platform are serialized.
func (f *CDPFactory) lockFor(p schemas.Platform) *semaphore.Weighted {
	f.mu.Lock()
	defer f.mu.Unlock()
	sem, ok := f.locks[p]
	if !ok {
		sem = semaphore.NewWeighted(1)
		f.locks[p] = sem
	}
	return sem
}

// ProfileDir returns the expanded profile directory for p.
func (f *CDPFactory) ProfileDir(p schemas.Platform) (string, error) {
	root, err := homedir.Expand(f.cfg.ProfileRoot)
	if err != nil {
		return "", fmt.Errorf("failed to expand profile root %q: %w", f.cfg.ProfileRoot, err)
	}
	return filepath.Join(root, string(p)), nil
}

// Launch starts a browser for opts.Platform. The returned Context owns the profile until
// it is closed; a concurrent Launch for the same platform blocks until then or until ctx ends.
func (f *CDPFactory) Launch(ctx context.Context, opts LaunchOptions) (Context, error) {
	if _, err := platform.Lookup(opts.Platform); err != nil {
		return nil, err
	}

	sem := f.lockFor(opts.Platform)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for %s profile: %w", opts.Platform, err)
	}
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { sem.Release(1) }) }

	c, err := f.launch(ctx, opts, release)
	if err != nil {
		release()
		return nil, err
	}
	return c, nil
}

func (f *CDPFactory) launch(ctx context.Context, opts LaunchOptions, release func()) (*cdpContext, error) {
	logger := f.logger.With(zap.String("platform", string(opts.Platform)))

	dir, err := f.ProfileDir(opts.Platform)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	if err := clearStaleLocks(dir, f.alive, logger); err != nil {
		return nil, err
	}

	vp := f.policy.Viewport()
	userAgent := ""
	var cookies []schemas.Cookie
	if opts.Session != nil {
		if opts.Session.Viewport.Width > 0 && opts.Session.Viewport.Height > 0 {
			vp = opts.Session.Viewport
		}
		userAgent = opts.Session.UserAgent
		cookies = opts.Session.Cookies
	}

	// The browser must survive cancellation of the request that launched it.
	base := context.WithoutCancel(ctx)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(base, execOptions(f.cfg, dir, userAgent, opts.Visible, vp)...)
	sugar := logger.Sugar()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run allocates the browser and must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	c := &cdpContext{
		platform:      opts.Platform,
		viewport:      vp,
		logger:        logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		release:       release,
		navTimeout:    f.cfg.NavigationTimeout,
		closed:        make(chan struct{}),
	}

	setupCtx := ctx
	if f.cfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		setupCtx, cancel = context.WithTimeout(ctx, f.cfg.LaunchTimeout)
		defer cancel()
	}

	tasks := chromedp.Tasks{network.Enable()}
	tasks = append(tasks, stealth.Apply(stealth.NewPersona(userAgent, vp), logger)...)
	if len(cookies) > 0 {
		tasks = append(tasks, network.SetCookies(toCookieParams(cookies)))
	}
	if err := c.run(setupCtx, tasks...); err != nil {
		// release is owned by c now; Close must not release it twice.
		c.release = nil
		_ = c.Close()
		return nil, fmt.Errorf("failed to prepare browser context: %w", err)
	}

	logger.Info("Browser context launched.",
		zap.Int("width", vp.Width),
		zap.Int("height", vp.Height),
		zap.Int("cookies", len(cookies)),
		zap.Bool("visible", opts.Visible || !f.cfg.Headless),
	)
	return c, nil
}
