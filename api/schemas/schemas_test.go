package schemas

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in   string
		want Platform
	}{
		{"x", PlatformX},
		{"Twitter", PlatformX},
		{"  X  ", PlatformX},
		{"linkedin", PlatformLinkedIn},
		{"LinkedIn", PlatformLinkedIn},
		{"li", PlatformLinkedIn},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlatform(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePlatform("mastodon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported platform "mastodon"`)
}

func TestBrowserSessionExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.False(t, (&BrowserSession{}).Expired(now), "no expiry means the session never expires locally")
	assert.True(t, (&BrowserSession{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&BrowserSession{ExpiresAt: &now}).Expired(now))
	assert.False(t, (&BrowserSession{ExpiresAt: &future}).Expired(now))
}

func TestPublishResultConstructors(t *testing.T) {
	ok := PublishSucceeded("https://x.com/jack/status/1", "1")
	assert.True(t, ok.Success)
	assert.Empty(t, ok.ErrorCode)
	assert.Empty(t, ok.Error)

	failed := PublishFailed(ErrCodeCaptcha, errors.New("challenge page"))
	assert.False(t, failed.Success)
	assert.Equal(t, ErrCodeCaptcha, failed.ErrorCode)
	assert.Equal(t, "challenge page", failed.Error)

	blank := PublishFailed("", nil)
	assert.Equal(t, ErrCodeUnknown, blank.ErrorCode)
	assert.Equal(t, "unknown", blank.Error)
}

func TestThreadMedia(t *testing.T) {
	req := PublishRequest{ThreadMediaIDs: [][]string{{"a"}, nil, {"b", "c"}}}
	assert.Equal(t, []string{"a"}, req.ThreadMedia(0))
	assert.Nil(t, req.ThreadMedia(1))
	assert.Equal(t, []string{"b", "c"}, req.ThreadMedia(2))
	assert.Nil(t, req.ThreadMedia(3))
	assert.Nil(t, req.ThreadMedia(-1))
}
