// Package platform describes the per-network facts the automation relies on: where to
// log in, which URLs mean the session is gone, and which DOM nodes prove it is alive.
package platform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

// Descriptor holds the static knowledge about one platform.
type Descriptor struct {
	Platform schemas.Platform
	// Domain is the registrable domain cookies are scoped to.
	Domain   string
	HomeURL  string
	LoginURL string
	// LoggedInSelector is present only on pages rendered for an authenticated user.
	LoggedInSelector string
	// AuthCookie is the cookie whose expiry bounds the session lifetime.
	AuthCookie string
	// LoginPathMarkers are URL path fragments that indicate a redirect to sign-in.
	LoginPathMarkers []string
	// ChallengeMarkers are URL fragments that indicate a CAPTCHA or security checkpoint.
	ChallengeMarkers []string
	// ChallengeSelector matches challenge iframes or widgets embedded in a page.
	ChallengeSelector string
}

var descriptors = map[schemas.Platform]Descriptor{
	schemas.PlatformX: {
		Platform:          schemas.PlatformX,
		Domain:            "x.com",
		HomeURL:           "https://x.com/home",
		LoginURL:          "https://x.com/i/flow/login",
		LoggedInSelector:  `[data-testid="SideNav_AccountSwitcher_Button"], [data-testid="AppTabBar_Home_Link"]`,
		AuthCookie:        "auth_token",
		LoginPathMarkers:  []string{"/login", "/i/flow/login", "/logout"},
		ChallengeMarkers:  []string{"/account/access", "captcha", "arkoselabs"},
		ChallengeSelector: `iframe[src*="arkoselabs"], iframe[src*="captcha"], #arkose_iframe`,
	},
	schemas.PlatformLinkedIn: {
		Platform:          schemas.PlatformLinkedIn,
		Domain:            "linkedin.com",
		HomeURL:           "https://www.linkedin.com/feed/",
		LoginURL:          "https://www.linkedin.com/login",
		LoggedInSelector:  `.global-nav__me, img.global-nav__me-photo, [data-control-name="nav.settings"]`,
		AuthCookie:        "li_at",
		LoginPathMarkers:  []string{"/login", "/uas/login", "/authwall", "/checkpoint/lg"},
		ChallengeMarkers:  []string{"/checkpoint/challenge", "captcha", "arkoselabs"},
		ChallengeSelector: `iframe[src*="captcha"], iframe[src*="arkoselabs"], #captcha-internal`,
	},
}

// Lookup returns the descriptor for p.
func Lookup(p schemas.Platform) (Descriptor, error) {
	d, ok := descriptors[p]
	if !ok {
		return Descriptor{}, fmt.Errorf("unsupported platform %q", p)
	}
	return d, nil
}

// MustLookup is Lookup for platforms already validated by the caller.
func MustLookup(p schemas.Platform) Descriptor {
	d, err := Lookup(p)
	if err != nil {
		panic(err)
	}
	return d
}

// IsChallengeURL reports whether rawURL is a CAPTCHA or security checkpoint.
func (d Descriptor) IsChallengeURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, m := range d.ChallengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// IsLoginURL reports whether rawURL is a sign-in or auth wall page. Challenge pages are
// not login pages even when they live under a login-like path.
func (d Descriptor) IsLoginURL(rawURL string) bool {
	if d.IsChallengeURL(rawURL) {
		return false
	}
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.ToLower(path)
	path = strings.TrimSuffix(path, "/")
	for _, m := range d.LoginPathMarkers {
		if path == m || strings.HasPrefix(path, m+"/") {
			return true
		}
	}
	return false
}

// OwnsURL reports whether rawURL belongs to the platform's domain.
func (d Descriptor) OwnsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == d.Domain || strings.HasSuffix(host, "."+d.Domain) {
		return true
	}
	// Legacy X links.
	return d.Platform == schemas.PlatformX && (host == "twitter.com" || strings.HasSuffix(host, ".twitter.com"))
}
