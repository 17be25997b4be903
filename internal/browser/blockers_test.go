package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/mocks"
	"github.com/xkilldash9x/socialpilot/internal/platform"
)

func TestDetectBlocker(t *testing.T) {
	ctx := context.Background()
	li := platform.MustLookup(schemas.PlatformLinkedIn)

	tests := []struct {
		name  string
		url   string
		setup func(f *mocks.FakeContext)
		want  browser.Blocker
	}{
		{name: "feed", url: "https://www.linkedin.com/feed/", want: browser.BlockerNone},
		{name: "authwall", url: "https://www.linkedin.com/authwall?trk=x", want: browser.BlockerLogin},
		{name: "checkpoint challenge url", url: "https://www.linkedin.com/checkpoint/challenge/AgF", want: browser.BlockerChallenge},
		{
			name: "embedded captcha widget",
			url:  "https://www.linkedin.com/feed/",
			setup: func(f *mocks.FakeContext) {
				f.SetPresent(li.ChallengeSelector, true)
			},
			want: browser.BlockerChallenge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := mocks.NewFakeContext(schemas.PlatformLinkedIn)
			page.URL = tt.url
			if tt.setup != nil {
				tt.setup(page)
			}
			got, err := browser.DetectBlocker(ctx, page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectBlockerErrors(t *testing.T) {
	page := mocks.NewFakeContext(schemas.PlatformX)
	page.Errs["CurrentURL"] = errors.New("target closed")
	_, err := browser.DetectBlocker(context.Background(), page)
	assert.Error(t, err)

	unknown := mocks.NewFakeContext(schemas.Platform("myspace"))
	_, err = browser.DetectBlocker(context.Background(), unknown)
	assert.Error(t, err)
}

func TestBlockerErr(t *testing.T) {
	assert.NoError(t, browser.BlockerNone.Err())
	assert.ErrorIs(t, browser.BlockerLogin.Err(), browser.ErrLoginRedirect)
	assert.ErrorIs(t, browser.BlockerChallenge.Err(), browser.ErrChallenge)
	assert.Equal(t, "challenge", browser.BlockerChallenge.String())
}
