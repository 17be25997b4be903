package publisher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/ledger"
	"github.com/xkilldash9x/socialpilot/internal/mocks"
	"github.com/xkilldash9x/socialpilot/internal/platform"
	"go.uber.org/zap"
)

type fakeSessions struct {
	mu          sync.Mutex
	err         error
	invalidated int
}

func (f *fakeSessions) Load(context.Context, schemas.Platform) (*schemas.BrowserSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &schemas.BrowserSession{Platform: schemas.PlatformX}, nil
}

func (f *fakeSessions) Invalidate(context.Context, schemas.Platform, string) {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func publishConfig(t *testing.T) config.PublishConfig {
	return config.PublishConfig{
		SettleTime:                         3 * time.Second,
		ReviewPollInterval:                 2 * time.Second,
		ReviewTimeout:                      5 * time.Minute,
		UploadTimeout:                      time.Minute,
		AssumeSuccessOnVerificationFailure: true,
		ArtifactDir:                        t.TempDir(),
	}
}

// xComposePage models the X compose dialog: opening it, adding thread items, uploads,
// submitting, and the profile page read during verification.
func xComposePage(opts browser.LaunchOptions) *mocks.FakeContext {
	page := mocks.NewFakeContext(opts.Platform)
	page.SetPresent(xNewPostButton, true)
	page.SetPresent(xAddItem, true)
	page.SetPresent(xSubmit, true)
	page.SetPresent(xStatusLink, true)
	page.SetAttr(xProfileLink, "href", "/jack")

	items := 0
	page.OnClick[xNewPostButton] = func(f *mocks.FakeContext) {
		f.SetPresent(xDialog, true)
		f.SetPresent(fmt.Sprintf(xEditorFmt, 0), true)
	}
	page.OnClick[xAddItem] = func(f *mocks.FakeContext) {
		items++
		f.SetPresent(fmt.Sprintf(xEditorFmt, items), true)
	}
	page.OnClick[xSubmit] = func(f *mocks.FakeContext) {
		f.SetPresent(xDialog, false)
	}
	page.OnUpload = func(f *mocks.FakeContext, _ string, _ []string) error {
		for i := 1; i <= 5; i++ {
			f.SetPresent(fmt.Sprintf(xAttachmentsFmt, i), true)
		}
		return nil
	}
	page.EvalFunc = func(expr string) (interface{}, error) {
		if expr != xStatusLinksJS {
			return nil, fmt.Errorf("unexpected script %q", expr)
		}
		return []string{"/jack/status/100", "/jack/status/205/photo/1", "/jack/status/99"}, nil
	}
	return page
}

type fixture struct {
	pub      *Publisher
	factory  *mocks.FakeFactory
	sessions *fakeSessions
}

// libraryResolver maps every asset id to a PNG in a fixed media directory.
type libraryResolver struct{}

func (libraryResolver) Resolve(_ context.Context, ids []string) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "/media/" + id + ".png"
	}
	return out, nil
}

func newFixture(t *testing.T, cfg config.PublishConfig, newPage func(browser.LaunchOptions) *mocks.FakeContext) *fixture {
	t.Helper()
	factory := &mocks.FakeFactory{New: newPage}
	sessions := &fakeSessions{}
	pub := New(cfg, Deps{
		Sessions:       sessions,
		Factory:        factory,
		Policy:         antidetect.NewWithSource(antidetect.DefaultConfig(), rand.NewSource(3)),
		Media:          libraryResolver{},
		ElementTimeout: time.Second,
		Logger:         zap.NewNop(),
	})
	pub.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	return &fixture{pub: pub, factory: factory, sessions: sessions}
}

func assertExclusive(t *testing.T, res schemas.PublishResult) {
	t.Helper()
	if res.Success {
		assert.Empty(t, res.ErrorCode, "a successful result never carries an error code")
	} else {
		assert.NotEmpty(t, res.ErrorCode, "a failed result always carries an error code")
	}
}

func TestAutoPublishSuccess(t *testing.T) {
	f := newFixture(t, publishConfig(t), xComposePage)

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{
		Platform:      schemas.PlatformX,
		Mode:          schemas.ModeAuto,
		Text:          "hello world",
		ContentItemID: "item-1",
	})

	assertExclusive(t, res)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "https://x.com/jack/status/205", res.PlatformURL)
	assert.Equal(t, "205", res.PlatformPostID)

	page := f.factory.Last()
	assert.Equal(t, "hello world", page.TypedText(), "text is typed key by key")
	assert.Equal(t, 1, page.CloseCalls())
	assert.Contains(t, page.Clicks, xSubmit)
	assert.Empty(t, f.pub.Pending())
}

func TestAutoPublishThreadWithMedia(t *testing.T) {
	f := newFixture(t, publishConfig(t), xComposePage)

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{
		Platform:       schemas.PlatformX,
		Mode:           schemas.ModeAuto,
		Text:           "1/",
		MediaAssetIDs:  []string{"cover"},
		ThreadTexts:    []string{"2/", "3/"},
		ThreadMediaIDs: [][]string{nil, {"chart-a", "chart-b"}},
		ContentItemID:  "thread-1",
	})

	require.True(t, res.Success, res.Error)
	page := f.factory.Last()
	assert.Equal(t, "1/2/3/", page.TypedText())
	assert.Equal(t, [][]string{{"/media/cover.png"}, {"/media/chart-a.png", "/media/chart-b.png"}}, page.Uploads)

	adds := 0
	submits := 0
	for _, c := range page.Clicks {
		switch c {
		case xAddItem:
			adds++
		case xSubmit:
			submits++
		}
	}
	assert.Equal(t, 2, adds)
	assert.Equal(t, 1, submits, "a thread is finalized with a single submit")
}

func TestAutoModeAlwaysClosesOnce(t *testing.T) {
	challenge := platform.MustLookup(schemas.PlatformX).ChallengeSelector

	tests := []struct {
		name     string
		mutate   func(f *mocks.FakeContext)
		cfg      func(c *config.PublishConfig)
		req      func(r *schemas.PublishRequest)
		wantOK   bool
		wantCode schemas.PublishErrorCode
	}{
		{
			name:     "login redirect",
			mutate:   func(f *mocks.FakeContext) { f.Redirects[xHome] = "https://x.com/i/flow/login" },
			wantCode: schemas.ErrCodeSessionExpired,
		},
		{
			name:     "captcha",
			mutate:   func(f *mocks.FakeContext) { f.SetPresent(challenge, true) },
			wantCode: schemas.ErrCodeCaptcha,
		},
		{
			name: "upload never confirmed",
			mutate: func(f *mocks.FakeContext) {
				f.OnUpload = nil
			},
			req:      func(r *schemas.PublishRequest) { r.MediaAssetIDs = []string{"a"} },
			wantCode: schemas.ErrCodeUploadFailed,
		},
		{
			name:     "compose button missing",
			mutate:   func(f *mocks.FakeContext) { f.SetPresent(xNewPostButton, false) },
			wantCode: schemas.ErrCodeTimeout,
		},
		{
			name:   "verification fails under the optimistic policy",
			mutate: func(f *mocks.FakeContext) { delete(f.Attrs, xProfileLink) },
			wantOK: true,
		},
		{
			name:     "verification fails under the strict policy",
			mutate:   func(f *mocks.FakeContext) { delete(f.Attrs, xProfileLink) },
			cfg:      func(c *config.PublishConfig) { c.AssumeSuccessOnVerificationFailure = false },
			wantCode: schemas.ErrCodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := publishConfig(t)
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			f := newFixture(t, cfg, func(opts browser.LaunchOptions) *mocks.FakeContext {
				page := xComposePage(opts)
				tt.mutate(page)
				return page
			})
			req := schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "hi", ContentItemID: "c"}
			if tt.req != nil {
				tt.req(&req)
			}

			res := f.pub.Publish(context.Background(), req)

			assertExclusive(t, res)
			assert.Equal(t, tt.wantOK, res.Success, res.Error)
			assert.Equal(t, tt.wantCode, res.ErrorCode)
			assert.Equal(t, 1, f.factory.Last().CloseCalls())
		})
	}
}

func TestVerificationFailureUnderOptimisticPolicyHasNoPermalink(t *testing.T) {
	f := newFixture(t, publishConfig(t), func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		page.EvalFunc = func(string) (interface{}, error) { return nil, errors.New("execution context was destroyed") }
		return page
	})
	res := f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "hi"})
	assert.True(t, res.Success)
	assert.Empty(t, res.PlatformURL)
	assert.Empty(t, res.PlatformPostID)
}

func TestLoginRedirectInvalidatesSession(t *testing.T) {
	f := newFixture(t, publishConfig(t), func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		page.Redirects[xHome] = "https://x.com/login"
		return page
	})
	res := f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "hi"})
	assert.Equal(t, schemas.ErrCodeSessionExpired, res.ErrorCode)
	assert.Equal(t, 1, f.sessions.invalidated)
}

func TestCaptchaWritesScreenshot(t *testing.T) {
	cfg := publishConfig(t)
	challenge := platform.MustLookup(schemas.PlatformX).ChallengeSelector
	f := newFixture(t, cfg, func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		page.SetPresent(challenge, true)
		return page
	})

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "hi", ContentItemID: "post/42"})
	require.Equal(t, schemas.ErrCodeCaptcha, res.ErrorCode)
	require.NotEmpty(t, res.ScreenshotPath)
	assert.Contains(t, res.ScreenshotPath, "x-post_42-captcha-20250301T093000.png")

	data, err := os.ReadFile(res.ScreenshotPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestUploadRetriesOnce(t *testing.T) {
	attempts := 0
	f := newFixture(t, publishConfig(t), func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		confirm := page.OnUpload
		page.OnUpload = func(fc *mocks.FakeContext, sel string, files []string) error {
			attempts++
			if attempts == 1 {
				return errors.New("file chooser was not intercepted")
			}
			return confirm(fc, sel, files)
		}
		return page
	})

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{
		Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "pic", MediaAssetIDs: []string{"img"},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, attempts)
}

func TestUploadFailsWhenMediaCannotBeResolved(t *testing.T) {
	f := newFixture(t, publishConfig(t), xComposePage)
	resolver := new(mocks.MockResolver)
	resolver.On("Resolve", mock.Anything, []string{"gone"}).Return(nil, errors.New("media asset not found: gone"))
	f.pub.deps.Media = resolver

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{
		Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "pic", MediaAssetIDs: []string{"gone"},
	})
	assert.Equal(t, schemas.ErrCodeUploadFailed, res.ErrorCode)
	assert.Empty(t, f.factory.Last().Uploads)
	resolver.AssertExpectations(t)
}

func TestNoSessionDoesNotLaunch(t *testing.T) {
	f := newFixture(t, publishConfig(t), xComposePage)
	f.sessions.err = errors.New("no stored session for x")

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "hi"})
	assert.Equal(t, schemas.ErrCodeSessionExpired, res.ErrorCode)
	assert.Empty(t, f.factory.Launches)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, publishConfig(t), xComposePage)
	ctx := context.Background()

	tests := map[string]schemas.PublishRequest{
		"linkedin rejects threads": {Platform: schemas.PlatformLinkedIn, Mode: schemas.ModeAuto, Text: "a", ThreadTexts: []string{"b"}},
		"review needs an item id":  {Platform: schemas.PlatformX, Mode: schemas.ModeReview, Text: "a"},
		"empty post":               {Platform: schemas.PlatformX, Mode: schemas.ModeAuto},
		"unknown mode":             {Platform: schemas.PlatformX, Mode: "yolo", Text: "a"},
		"unknown platform":         {Platform: "myspace", Mode: schemas.ModeAuto, Text: "a"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			res := f.pub.Publish(ctx, req)
			assert.False(t, res.Success)
			assert.Equal(t, schemas.ErrCodeUnknown, res.ErrorCode)
		})
	}
	assert.Empty(t, f.factory.Launches, "invalid requests never launch a browser")

	res := f.pub.Publish(ctx, schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "a", MediaAssetIDs: []string{"1", "2", "3", "4", "5"}})
	assert.Equal(t, schemas.ErrCodeUploadFailed, res.ErrorCode)
}

func TestReviewModeSuccessLeavesContextOpen(t *testing.T) {
	f := newFixture(t, publishConfig(t), func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		polls := 0
		// The operator clicks Post while the third poll is pending.
		page.OnExists = func(fc *mocks.FakeContext, selector string) {
			if selector == xDialog {
				polls++
				if polls == 3 {
					fc.SetPresent(xDialog, false)
				}
			}
		}
		return page
	})

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{
		Platform: schemas.PlatformX, Mode: schemas.ModeReview, Text: "check me", ContentItemID: "rev-1",
	})

	require.True(t, res.Success, res.Error)
	page := f.factory.Last()
	assert.NotContains(t, page.Clicks, xSubmit, "review mode never clicks the finalize button")
	assert.Zero(t, page.CloseCalls(), "the context stays open for the operator")
	assert.Equal(t, []string{"rev-1"}, f.pub.Pending())

	assert.True(t, f.pub.Release("rev-1"))
	assert.Equal(t, 1, page.CloseCalls())
	assert.False(t, f.pub.Release("rev-1"))
	assert.Equal(t, 1, page.CloseCalls())
}

func TestReviewModeTimeout(t *testing.T) {
	cfg := publishConfig(t)
	f := newFixture(t, cfg, xComposePage)

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{
		Platform: schemas.PlatformX, Mode: schemas.ModeReview, Text: "never sent", ContentItemID: "rev-2",
	})

	assertExclusive(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, schemas.ErrCodeTimeout, res.ErrorCode)

	page := f.factory.Last()
	assert.Zero(t, page.CloseCalls(), "timeout leaves the context open until released")

	polls := 0
	for _, d := range page.Sleeps {
		if d == cfg.ReviewPollInterval {
			polls++
		}
	}
	assert.Equal(t, int(cfg.ReviewTimeout/cfg.ReviewPollInterval), polls)

	assert.Equal(t, 1, f.pub.ReleaseAll())
	assert.Equal(t, 1, page.CloseCalls())
	assert.Empty(t, f.pub.Pending())
}

func TestReviewModeIsCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, publishConfig(t), func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		page.OnExists = func(_ *mocks.FakeContext, selector string) {
			if selector == xDialog {
				cancel()
			}
		}
		return page
	})

	res := f.pub.Publish(ctx, schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeReview, Text: "x", ContentItemID: "rev-3"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "cancel")
	assert.Equal(t, 1, f.pub.ReleaseAll())
}

// profileLockingFactory refuses a launch while an earlier context for the same platform is
// still open, the way the Chrome factory guards a profile.
type profileLockingFactory struct {
	*mocks.FakeFactory
}

func (f profileLockingFactory) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Context, error) {
	for _, c := range f.Contexts {
		if c.PlatformID == opts.Platform && !c.Closed() {
			return nil, fmt.Errorf("%w: %s", browser.ErrProfileBusy, opts.Platform)
		}
	}
	return f.FakeFactory.Launch(ctx, opts)
}

func TestReviewRepublishReleasesPreviousContext(t *testing.T) {
	f := newFixture(t, publishConfig(t), xComposePage)
	f.pub.deps.Factory = profileLockingFactory{f.factory}
	req := schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeReview, Text: "again", ContentItemID: "rev-4"}

	f.pub.Publish(context.Background(), req)
	first := f.factory.Last()
	require.Equal(t, []string{"rev-4"}, f.pub.Pending())

	f.pub.Publish(context.Background(), req)
	require.Len(t, f.factory.Contexts, 2, "the second attempt launched despite the profile lock")
	assert.Equal(t, 1, first.CloseCalls(), "a second attempt for the same item closes the first context")
	assert.Zero(t, f.factory.Last().CloseCalls())
	assert.Equal(t, []string{"rev-4"}, f.pub.Pending())

	// A different item on the same platform cannot take the held profile.
	other := f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "blocked"})
	assert.False(t, other.Success)
	assert.Contains(t, other.Error, "in use")
	assert.Len(t, f.factory.Contexts, 2)

	f.pub.ReleaseAll()
}

func TestReviewHoldReplacesOverlappingContext(t *testing.T) {
	reviews := newReviewRegistry(zap.NewNop())
	first := mocks.NewFakeContext(schemas.PlatformX)
	second := mocks.NewFakeContext(schemas.PlatformX)

	reviews.hold("rev-5", first)
	reviews.hold("rev-5", second)
	assert.Equal(t, 1, first.CloseCalls())
	assert.Zero(t, second.CloseCalls())

	reviews.hold("rev-5", second)
	assert.Zero(t, second.CloseCalls(), "holding the same context again is a no-op")
	assert.Equal(t, 1, reviews.releaseAll())
}

func TestPublishRecoversPanics(t *testing.T) {
	f := newFixture(t, publishConfig(t), func(opts browser.LaunchOptions) *mocks.FakeContext {
		page := xComposePage(opts)
		page.EvalFunc = func(string) (interface{}, error) { panic("renderer crashed") }
		return page
	})

	var res schemas.PublishResult
	require.NotPanics(t, func() {
		res = f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "boom"})
	})
	assert.Equal(t, schemas.ErrCodeUnknown, res.ErrorCode)
	assert.Contains(t, res.Error, "renderer crashed")
	assert.Equal(t, 1, f.factory.Last().CloseCalls())
}

type stepSink struct {
	mu    sync.Mutex
	steps []schemas.StepRecord
}

func (s *stepSink) CreateStep(_ context.Context, rec schemas.StepRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, rec)
	return len(s.steps) - 1, nil
}

func TestStepsAreRecorded(t *testing.T) {
	sink := &stepSink{}
	rec := ledger.NewRecorder(sink, zap.NewNop(), 64)
	f := newFixture(t, publishConfig(t), xComposePage)
	f.pub.deps.Recorder = rec

	res := f.pub.Publish(context.Background(), schemas.PublishRequest{Platform: schemas.PlatformX, Mode: schemas.ModeAuto, Text: "log me"})
	require.True(t, res.Success)
	require.NoError(t, rec.Close(context.Background()))

	var types []string
	for _, s := range sink.steps {
		types = append(types, s.StepType)
		assert.Equal(t, schemas.StepCompleted, s.Status)
	}
	assert.Equal(t, []string{
		"publish.init", "publish.session_check", "publish.navigate", "publish.detect_blockers",
		"publish.compose_open", "publish.type_text", "publish.submit", "publish.verify",
	}, types)
}

func TestNewestStatus(t *testing.T) {
	path, id := newestStatus([]string{"/a/status/9", "/a/status/10?s=20", "/a/photo", "/a/status/abc"})
	assert.Equal(t, "/a/status/10", path)
	assert.Equal(t, "10", id)

	_, id = newestStatus(nil)
	assert.Empty(t, id)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "wait_for_user", StateWaitForUser.String())
	assert.Equal(t, "publish.upload_media", StateUploadMedia.StepType())
	assert.Equal(t, "state(99)", State(99).String())
}
