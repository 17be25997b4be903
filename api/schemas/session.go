package schemas

import (
	"fmt"
	"strings"
	"time"
)

// -- Platform Schemas --

// Platform identifies a third-party network driven through the browser.
type Platform string

const (
	PlatformX        Platform = "x"
	PlatformLinkedIn Platform = "linkedin"
)

// Platforms lists every platform the automation engine can drive.
var Platforms = []Platform{PlatformX, PlatformLinkedIn}

// ParsePlatform normalizes user input ("twitter", "LinkedIn", ...) into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "twitter":
		return PlatformX, nil
	case "linkedin", "li":
		return PlatformLinkedIn, nil
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

// -- Browser Session Schemas --

// Cookie is a browser cookie captured from, or replayed into, a platform session.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"httpOnly"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"sameSite,omitempty"`
}

// Viewport is the window size a context was (or will be) launched with.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BrowserSession is the authenticated state for one platform. It is encrypted at rest and
// read-only to every component other than the session store.
type BrowserSession struct {
	Platform        Platform   `json:"platform"`
	Cookies         []Cookie   `json:"cookies"`
	UserAgent       string     `json:"userAgent"`
	Viewport        Viewport   `json:"viewport"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastValidatedAt time.Time  `json:"lastValidatedAt"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the session has a known expiry that has passed.
func (s *BrowserSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
