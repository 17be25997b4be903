package sessionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/credentials"
	"github.com/xkilldash9x/socialpilot/internal/mocks"
	"github.com/xkilldash9x/socialpilot/internal/platform"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store   *Store
	vault   *credentials.Vault
	factory *mocks.FakeFactory
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, newPage func(opts browser.LaunchOptions) *mocks.FakeContext) *harness {
	t.Helper()
	backend, err := credentials.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	vault, err := credentials.NewVault(make([]byte, 32), backend)
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	factory := &mocks.FakeFactory{New: newPage}
	s := New(vault, factory, config.SessionConfig{SetupTimeout: 10 * time.Second}, zap.New(core))
	s.now = func() time.Time { return fixedNow }
	return &harness{store: s, vault: vault, factory: factory, logs: logs}
}

func storedSession(p schemas.Platform) *schemas.BrowserSession {
	return &schemas.BrowserSession{
		Platform:        p,
		Cookies:         []schemas.Cookie{{Name: "auth_token", Value: "abc", Domain: ".x.com", Path: "/"}},
		UserAgent:       "ua",
		Viewport:        schemas.Viewport{Width: 1440, Height: 900},
		CreatedAt:       fixedNow.Add(-48 * time.Hour),
		LastValidatedAt: fixedNow.Add(-24 * time.Hour),
	}
}

func TestLoadAndHas(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	assert.False(t, h.store.Has(ctx, schemas.PlatformX))
	_, err := h.store.Load(ctx, schemas.PlatformX)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))
	assert.True(t, h.store.Has(ctx, schemas.PlatformX))

	got, err := h.store.Load(ctx, schemas.PlatformX)
	require.NoError(t, err)
	assert.Equal(t, "ua", got.UserAgent)
}

func TestLoadClearsExpiredSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	session := storedSession(schemas.PlatformX)
	past := fixedNow.Add(-time.Minute)
	session.ExpiresAt = &past
	require.NoError(t, h.vault.Save(ctx, session))

	_, err := h.store.Load(ctx, schemas.PlatformX)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = h.vault.Load(ctx, schemas.PlatformX)
	assert.ErrorIs(t, err, credentials.ErrNotFound, "expired session must be deleted")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))

	require.NoError(t, h.store.Clear(ctx, schemas.PlatformX))
	assert.False(t, h.store.Has(ctx, schemas.PlatformX))
	// Clearing twice is fine.
	require.NoError(t, h.store.Clear(ctx, schemas.PlatformX))
}

func TestSetup(t *testing.T) {
	desc := platform.MustLookup(schemas.PlatformX)
	expiry := fixedNow.Add(30 * 24 * time.Hour)

	t.Run("captures scoped cookies after login", func(t *testing.T) {
		ctx := context.Background()
		polls := 0
		h := newHarness(t, func(opts browser.LaunchOptions) *mocks.FakeContext {
			page := mocks.NewFakeContext(opts.Platform)
			page.CookieJar = []schemas.Cookie{
				{Name: "auth_token", Value: "secret", Domain: ".x.com", Path: "/", Expires: expiry, HTTPOnly: true, Secure: true},
				{Name: "ct0", Value: "csrf", Domain: "x.com", Path: "/"},
				{Name: "tracker", Value: "t", Domain: ".doubleclick.net", Path: "/"},
			}
			// The operator finishes logging in on the third probe.
			page.OnExists = func(f *mocks.FakeContext, selector string) {
				if selector == desc.LoggedInSelector {
					polls++
					if polls == 3 {
						f.SetPresent(selector, true)
					}
				}
			}
			return page
		})

		session, err := h.store.Setup(ctx, schemas.PlatformX)
		require.NoError(t, err)

		require.Len(t, h.factory.Launches, 1)
		assert.True(t, h.factory.Launches[0].Visible, "setup must open a visible window")
		page := h.factory.Last()
		assert.Equal(t, []string{desc.LoginURL}, page.Navigations)
		assert.Equal(t, 1, page.CloseCalls())

		assert.Len(t, session.Cookies, 2, "third-party cookies are dropped")
		assert.Equal(t, fixedNow, session.CreatedAt)
		assert.Equal(t, fixedNow, session.LastValidatedAt)
		require.NotNil(t, session.ExpiresAt)
		assert.True(t, expiry.Equal(*session.ExpiresAt))
		assert.Equal(t, page.UA, session.UserAgent)

		stored, err := h.vault.Load(ctx, schemas.PlatformX)
		require.NoError(t, err)
		assert.Equal(t, session.Cookies, stored.Cookies)
	})

	t.Run("times out when login never completes", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.store.Setup(context.Background(), schemas.PlatformX)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSetupTimeout)
		assert.Equal(t, 1, h.factory.Last().CloseCalls())
		// 10s timeout / 2s poll interval, plus the initial probe.
		assert.Len(t, h.factory.Last().Sleeps, 6)
	})

	t.Run("rejects a login without the auth cookie", func(t *testing.T) {
		h := newHarness(t, func(opts browser.LaunchOptions) *mocks.FakeContext {
			page := mocks.NewFakeContext(opts.Platform)
			page.SetPresent(desc.LoggedInSelector, true)
			return page
		})
		_, err := h.store.Setup(context.Background(), schemas.PlatformX)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth_token")
		assert.False(t, h.store.Has(context.Background(), schemas.PlatformX))
	})
}

func TestValidate(t *testing.T) {
	desc := platform.MustLookup(schemas.PlatformX)

	t.Run("missing session", func(t *testing.T) {
		h := newHarness(t, nil)
		assert.Equal(t, StatusMissing, h.store.Check(context.Background(), schemas.PlatformX))
		assert.Empty(t, h.factory.Launches, "no browser is launched without a session")
	})

	t.Run("logged-in surface refreshes the timestamp", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, func(opts browser.LaunchOptions) *mocks.FakeContext {
			page := mocks.NewFakeContext(opts.Platform)
			page.SetPresent(desc.LoggedInSelector, true)
			return page
		})
		require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))

		assert.True(t, h.store.Validate(ctx, schemas.PlatformX))
		require.Len(t, h.factory.Launches, 1)
		assert.NotNil(t, h.factory.Launches[0].Session, "the stored session is replayed")
		assert.Equal(t, []string{desc.HomeURL}, h.factory.Last().Navigations)
		assert.Equal(t, 1, h.factory.Last().CloseCalls())

		stored, err := h.vault.Load(ctx, schemas.PlatformX)
		require.NoError(t, err)
		assert.Equal(t, fixedNow, stored.LastValidatedAt)
	})

	t.Run("login redirect returns false and invalidates", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, func(opts browser.LaunchOptions) *mocks.FakeContext {
			page := mocks.NewFakeContext(opts.Platform)
			page.Redirects[desc.HomeURL] = "https://x.com/i/flow/login?redirect_after_login=%2Fhome"
			return page
		})
		require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))

		assert.NotPanics(t, func() {
			assert.False(t, h.store.Validate(ctx, schemas.PlatformX))
		})
		assert.False(t, h.store.Has(ctx, schemas.PlatformX), "redirect deletes the session")
		assert.Equal(t, 1, h.logs.FilterMessage("Invalidating session.").Len())
	})

	t.Run("navigation failure is unverified and keeps the session", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, func(opts browser.LaunchOptions) *mocks.FakeContext {
			page := mocks.NewFakeContext(opts.Platform)
			page.Errs["Navigate"] = errors.New("net::ERR_INTERNET_DISCONNECTED")
			return page
		})
		require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))

		assert.Equal(t, StatusUnverified, h.store.Check(ctx, schemas.PlatformX))
		assert.True(t, h.store.Has(ctx, schemas.PlatformX))
	})

	t.Run("challenge page is unverified", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, func(opts browser.LaunchOptions) *mocks.FakeContext {
			page := mocks.NewFakeContext(opts.Platform)
			page.Redirects[desc.HomeURL] = "https://x.com/account/access"
			return page
		})
		require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))

		assert.Equal(t, StatusUnverified, h.store.Check(ctx, schemas.PlatformX))
		assert.True(t, h.store.Has(ctx, schemas.PlatformX))
	})

	t.Run("launch failure is unverified", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(t, nil)
		h.factory.Err = browser.ErrProfileBusy
		require.NoError(t, h.vault.Save(ctx, storedSession(schemas.PlatformX)))
		assert.False(t, h.store.Validate(ctx, schemas.PlatformX))
	})
}

func TestScopeCookies(t *testing.T) {
	in := []schemas.Cookie{
		{Name: "li_at", Domain: ".www.linkedin.com"},
		{Name: "JSESSIONID", Domain: "linkedin.com"},
		{Name: "bcookie", Domain: ".notlinkedin.com"},
		{Name: "bad", Domain: ""},
	}
	out := scopeCookies(in, "linkedin.com")
	require.Len(t, out, 2)
	assert.Equal(t, "li_at", out[0].Name)
	assert.Equal(t, "JSESSIONID", out[1].Name)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "valid", StatusValid.String())
	assert.Equal(t, "needs_refresh", StatusNeedsRefresh.String())
	assert.Equal(t, "status(42)", Status(42).String())
}
