// internal/browser/browser_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/antidetect"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExecFlags(t *testing.T) {
	vp := schemas.Viewport{Width: 1366, Height: 768}

	t.Run("automation markers are removed", func(t *testing.T) {
		flags := execFlags(config.BrowserConfig{Headless: true}, false, vp)
		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		assert.Equal(t, true, flags["no-first-run"])
		assert.Equal(t, true, flags["no-default-browser-check"])
		assert.Equal(t, "new", flags["headless"])
		assert.Equal(t, "1366,768", flags["window-size"])
	})

	t.Run("visible launch overrides headless", func(t *testing.T) {
		flags := execFlags(config.BrowserConfig{Headless: true}, true, vp)
		assert.Equal(t, false, flags["headless"])
	})

	t.Run("config args are parsed", func(t *testing.T) {
		flags := execFlags(config.BrowserConfig{Args: []string{"--no-zygote", "lang=de-DE", "  ", "--proxy-server=socks5://127.0.0.1:9050"}}, false, vp)
		assert.Equal(t, true, flags["no-zygote"])
		assert.Equal(t, "de-DE", flags["lang"])
		assert.Equal(t, "socks5://127.0.0.1:9050", flags["proxy-server"])
		assert.NotContains(t, flags, "")
	})

	t.Run("exec options include defaults", func(t *testing.T) {
		opts := execOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"}, "/tmp/p", "UA", false, vp)
		assert.Greater(t, len(opts), len(execFlags(config.BrowserConfig{}, false, vp)))
	})
}

func TestCookieConversion(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	stored := []schemas.Cookie{
		{Name: "li_at", Value: "secret", Domain: ".linkedin.com", Path: "/", Expires: expires, HTTPOnly: true, Secure: true, SameSite: "None"},
		{Name: "lang", Value: "en", Domain: ".linkedin.com"},
	}

	params := toCookieParams(stored)
	require.Len(t, params, 2)
	assert.Equal(t, network.CookieSameSiteNone, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.True(t, time.Time(*params[0].Expires).Equal(expires))
	assert.Equal(t, "/", params[1].Path, "missing path defaults to root")
	assert.Nil(t, params[1].Expires, "session cookies carry no expiry")

	back := fromNetworkCookies([]*network.Cookie{
		{Name: "li_at", Value: "secret", Domain: ".linkedin.com", Path: "/", Expires: float64(expires.Unix()), HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteNone},
		{Name: "lang", Value: "en", Domain: ".linkedin.com", Path: "/", Expires: -1, Session: true},
		nil,
	})
	require.Len(t, back, 2)
	assert.True(t, back[0].Expires.Equal(expires))
	assert.Equal(t, "None", back[0].SameSite)
	assert.True(t, back[1].Expires.IsZero())
}

func TestClearStaleLocks(t *testing.T) {
	host, err := os.Hostname()
	require.NoError(t, err)

	seed := func(t *testing.T, target string) string {
		dir := t.TempDir()
		require.NoError(t, os.Symlink(target, filepath.Join(dir, "SingletonLock")))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SingletonCookie"), []byte("x"), 0o600))
		return dir
	}

	t.Run("dead owner locks are removed", func(t *testing.T) {
		dir := seed(t, fmt.Sprintf("%s-%d", host, 999999))
		core, logs := observer.New(zap.InfoLevel)

		err := clearStaleLocks(dir, func(int) bool { return false }, zap.New(core))
		require.NoError(t, err)

		_, statErr := os.Lstat(filepath.Join(dir, "SingletonLock"))
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
		_, statErr = os.Lstat(filepath.Join(dir, "SingletonCookie"))
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
		assert.Equal(t, 1, logs.FilterMessage("Removed stale browser profile locks.").Len())
	})

	t.Run("live local owner blocks launch", func(t *testing.T) {
		dir := seed(t, fmt.Sprintf("%s-%d", host, os.Getpid()))

		err := clearStaleLocks(dir, func(int) bool { return true }, zap.NewNop())
		assert.ErrorIs(t, err, ErrProfileBusy)

		_, statErr := os.Lstat(filepath.Join(dir, "SingletonLock"))
		assert.NoError(t, statErr, "a live lock must be left in place")
	})

	t.Run("locks from another host are stale", func(t *testing.T) {
		dir := seed(t, "some-other-machine-4242")
		err := clearStaleLocks(dir, func(int) bool { return true }, zap.NewNop())
		assert.NoError(t, err)
	})

	t.Run("clean profile is untouched", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		require.NoError(t, clearStaleLocks(t.TempDir(), processAlive, zap.New(core)))
		assert.Zero(t, logs.Len())
	})
}

func TestParseLockTarget(t *testing.T) {
	host, pid := parseLockTarget("my-laptop.local-1234")
	assert.Equal(t, "my-laptop.local", host)
	assert.Equal(t, 1234, pid)

	host, pid = parseLockTarget("garbage")
	assert.Equal(t, "", host)
	assert.Equal(t, 0, pid)
}

func TestFactoryProfileLocking(t *testing.T) {
	f := NewFactory(config.BrowserConfig{ProfileRoot: t.TempDir()}, antidetect.New(antidetect.DefaultConfig()), zap.NewNop())

	x1 := f.lockFor(schemas.PlatformX)
	assert.Same(t, x1, f.lockFor(schemas.PlatformX))
	assert.NotSame(t, x1, f.lockFor(schemas.PlatformLinkedIn))

	require.True(t, x1.TryAcquire(1))
	defer x1.Release(1)

	// A second launch for the same platform waits and gives up with the caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Launch(ctx, LaunchOptions{Platform: schemas.PlatformX})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = f.Launch(context.Background(), LaunchOptions{Platform: "myspace"})
	assert.Error(t, err)
}

func TestProfileDir(t *testing.T) {
	f := NewFactory(config.BrowserConfig{ProfileRoot: "/var/lib/socialpilot"}, antidetect.New(antidetect.DefaultConfig()), zap.NewNop())
	dir, err := f.ProfileDir(schemas.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/lib/socialpilot", "linkedin"), dir)
}
