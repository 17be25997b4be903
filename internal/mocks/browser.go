// File: internal/mocks/browser.go
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
)

// ErrNoElement is returned by FakeContext interactions on selectors that are not present.
var ErrNoElement = errors.New("fake browser: no element matches selector")

// FakeContext is a scriptable in-memory browser.Context. Page state is a set of present
// selectors plus text and attribute tables; hooks let a test react to clicks, typing and
// polling the way a real page would.
type FakeContext struct {
	mu sync.Mutex

	PlatformID schemas.Platform
	VP         schemas.Viewport
	URL        string
	UA         string

	// Redirects maps a navigated URL to the URL the page ends up on.
	Redirects map[string]string
	// Present is the set of selectors that currently match a visible node.
	Present   map[string]bool
	Texts     map[string]string
	TextLists map[string][]string
	Attrs     map[string]map[string]string
	CookieJar []schemas.Cookie

	// Errs injects a failure for a method name ("Navigate", "Click", "SetUploadFiles", ...).
	Errs map[string]error

	OnNavigate func(f *FakeContext, url string)
	OnClick    map[string]func(f *FakeContext)
	OnUpload   func(f *FakeContext, selector string, files []string) error
	OnExists   func(f *FakeContext, selector string)
	OnReload   func(f *FakeContext)
	EvalFunc   func(expression string) (interface{}, error)

	Navigations []string
	Clicks      []string
	Typed       strings.Builder
	Uploads     [][]string
	Wheels      int
	Sleeps      []time.Duration
	closeCalls  int
}

var _ browser.Context = (*FakeContext)(nil)

// NewFakeContext creates an empty page for p.
func NewFakeContext(p schemas.Platform) *FakeContext {
	return &FakeContext{
		PlatformID: p,
		VP:         schemas.Viewport{Width: 1440, Height: 900},
		UA:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) FakeChrome/131.0",
		Redirects:  map[string]string{},
		Present:    map[string]bool{},
		Texts:      map[string]string{},
		TextLists:  map[string][]string{},
		Attrs:      map[string]map[string]string{},
		Errs:       map[string]error{},
		OnClick:    map[string]func(f *FakeContext){},
	}
}

// SetPresent marks a selector as matching (or not). Safe to call from hooks.
func (f *FakeContext) SetPresent(selector string, present bool) {
	f.Present[selector] = present
}

// SetAttr sets an attribute value for a selector.
func (f *FakeContext) SetAttr(selector, name, value string) {
	if f.Attrs[selector] == nil {
		f.Attrs[selector] = map[string]string{}
	}
	f.Attrs[selector][name] = value
}

// CloseCalls returns how many times Close was invoked.
func (f *FakeContext) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// Closed reports whether Close was invoked at least once.
func (f *FakeContext) Closed() bool { return f.CloseCalls() > 0 }

// TypedText returns everything sent through SendKeys.
func (f *FakeContext) TypedText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Typed.String()
}

func (f *FakeContext) err(method string) error {
	return f.Errs[method]
}

func (f *FakeContext) Platform() schemas.Platform { return f.PlatformID }
func (f *FakeContext) Viewport() schemas.Viewport { return f.VP }

func (f *FakeContext) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.Sleeps = append(f.Sleeps, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *FakeContext) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	if err := f.err("Click"); err != nil {
		f.mu.Unlock()
		return err
	}
	if !f.Present[selector] {
		f.mu.Unlock()
		return fmt.Errorf("click %s: %w", selector, ErrNoElement)
	}
	f.Clicks = append(f.Clicks, selector)
	hook := f.OnClick[selector]
	if hook != nil {
		hook(f)
	}
	f.mu.Unlock()
	return ctx.Err()
}

func (f *FakeContext) SendKeys(ctx context.Context, keys string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("SendKeys"); err != nil {
		return err
	}
	f.Typed.WriteString(keys)
	return ctx.Err()
}

func (f *FakeContext) DispatchWheel(ctx context.Context, _, _ float64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Wheels++
	return ctx.Err()
}

func (f *FakeContext) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Navigate"); err != nil {
		return err
	}
	f.Navigations = append(f.Navigations, url)
	f.URL = url
	if to, ok := f.Redirects[url]; ok {
		f.URL = to
	}
	if f.OnNavigate != nil {
		f.OnNavigate(f, url)
	}
	return ctx.Err()
}

func (f *FakeContext) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Reload"); err != nil {
		return err
	}
	if f.OnReload != nil {
		f.OnReload(f)
	}
	return ctx.Err()
}

func (f *FakeContext) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("CurrentURL"); err != nil {
		return "", err
	}
	return f.URL, ctx.Err()
}

func (f *FakeContext) Exists(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OnExists != nil {
		f.OnExists(f, selector)
	}
	if err := f.err("Exists"); err != nil {
		return false, err
	}
	return f.Present[selector], ctx.Err()
}

func (f *FakeContext) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("WaitVisible"); err != nil {
		return err
	}
	if !f.Present[selector] {
		return fmt.Errorf("waiting %s for %s: %w", timeout, selector, context.DeadlineExceeded)
	}
	return ctx.Err()
}

func (f *FakeContext) Text(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Text"); err != nil {
		return "", err
	}
	return f.Texts[selector], ctx.Err()
}

func (f *FakeContext) TextAll(ctx context.Context, selector string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.TextLists[selector]
	if limit >= 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]string(nil), list...), ctx.Err()
}

func (f *FakeContext) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Attribute"); err != nil {
		return "", false, err
	}
	v, ok := f.Attrs[selector][name]
	return v, ok, ctx.Err()
}

func (f *FakeContext) Evaluate(ctx context.Context, expression string, out interface{}) error {
	f.mu.Lock()
	fn := f.EvalFunc
	f.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("fake browser: no evaluator for %q", expression)
	}
	v, err := fn(expression)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *FakeContext) SetUploadFiles(ctx context.Context, selector string, files []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploads = append(f.Uploads, append([]string(nil), files...))
	if f.OnUpload != nil {
		if err := f.OnUpload(f, selector, files); err != nil {
			return err
		}
	}
	if err := f.err("SetUploadFiles"); err != nil {
		return err
	}
	return ctx.Err()
}

func (f *FakeContext) Screenshot(ctx context.Context) ([]byte, error) {
	if err := f.err("Screenshot"); err != nil {
		return nil, err
	}
	return []byte("\x89PNG\r\n\x1a\nfake"), ctx.Err()
}

func (f *FakeContext) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Cookies"); err != nil {
		return nil, err
	}
	return append([]schemas.Cookie(nil), f.CookieJar...), ctx.Err()
}

func (f *FakeContext) UserAgent(ctx context.Context) (string, error) {
	return f.UA, ctx.Err()
}

func (f *FakeContext) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// FakeFactory hands out FakeContexts and records every launch.
type FakeFactory struct {
	mu sync.Mutex

	// New builds the context for a launch. Defaults to an empty page.
	New func(opts browser.LaunchOptions) *FakeContext
	// Err fails every launch when set.
	Err error

	Launches []browser.LaunchOptions
	Contexts []*FakeContext
}

var _ browser.Factory = (*FakeFactory)(nil)

func (f *FakeFactory) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Launches = append(f.Launches, opts)
	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c *FakeContext
	if f.New != nil {
		c = f.New(opts)
	} else {
		c = NewFakeContext(opts.Platform)
	}
	f.Contexts = append(f.Contexts, c)
	return c, nil
}

// Last returns the most recently launched context.
func (f *FakeFactory) Last() *FakeContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Contexts) == 0 {
		return nil
	}
	return f.Contexts[len(f.Contexts)-1]
}
