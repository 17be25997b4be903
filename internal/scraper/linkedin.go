package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/browser"
	"github.com/xkilldash9x/socialpilot/internal/platform"
)

const (
	liName        = `h1`
	liHeadline    = `.pv-text-details__left-panel .text-body-medium, .text-body-medium.break-words`
	liLocation    = `.pv-text-details__left-panel .text-body-small.inline, .text-body-small.inline.t-black--light.break-words`
	liAbout       = `#about ~ .display-flex .inline-show-more-text span[aria-hidden="true"], section.pv-about-section .pv-about__summary-text`
	liConnections = `a[href*="/mynetwork/"] span.t-bold, li.text-body-small span.t-bold`
	liFollowers   = `a[href*="/followers/"] span.t-bold, p.pvs-header__subtitle span[aria-hidden="true"]`
	liFeatured    = `#featured ~ div .pvs-list__item--line-separated span[aria-hidden="true"]`
	liPosts       = `.feed-shared-update-v2__description span[dir="ltr"], .update-components-text span[dir="ltr"]`
	liContactSite = `section.pv-contact-info__contact-type a[href^="http"]`
	liUnavailable = `.profile-unavailable, .not-found__container`
)

var liSlug = regexp.MustCompile(`^[A-Za-z0-9\-_%]{3,100}$`)

type linkedInExtractor struct{}

func (linkedInExtractor) Platform() schemas.Platform { return schemas.PlatformLinkedIn }

func (linkedInExtractor) ProfileURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	target = strings.TrimPrefix(target, "in/")
	if liSlug.MatchString(target) {
		return "https://www.linkedin.com/in/" + target + "/", nil
	}
	u, err := url.Parse(target)
	if err != nil || !platform.MustLookup(schemas.PlatformLinkedIn).OwnsURL(target) {
		return "", fmt.Errorf("%q is not a LinkedIn profile", target)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "in" || !liSlug.MatchString(parts[1]) {
		return "", fmt.Errorf("%q is not a LinkedIn profile", target)
	}
	return "https://www.linkedin.com/in/" + parts[1] + "/", nil
}

func (linkedInExtractor) ValidateSession(ctx context.Context, c browser.Context) (bool, error) {
	return c.Exists(ctx, platform.MustLookup(schemas.PlatformLinkedIn).LoggedInSelector)
}

func (linkedInExtractor) ExtractProfile(ctx context.Context, c browser.Context, timeout time.Duration) (*schemas.RawProfileData, error) {
	if err := c.WaitVisible(ctx, liName, timeout); err != nil {
		if missing, _ := c.Exists(ctx, liUnavailable); missing {
			return nil, fmt.Errorf("profile is unavailable")
		}
		return nil, fmt.Errorf("profile content did not load: %w", err)
	}

	raw := &schemas.RawProfileData{Platform: schemas.PlatformLinkedIn}
	fields := []struct {
		dst       *string
		selectors []string
	}{
		{&raw.Name, []string{liName}},
		{&raw.Headline, []string{liHeadline}},
		{&raw.Location, []string{liLocation}},
		{&raw.Bio, []string{liAbout}},
		{&raw.ConnectionCount, []string{liConnections}},
		{&raw.FollowerCount, []string{liFollowers}},
		{&raw.PinnedContent, []string{liFeatured}},
	}
	for _, f := range fields {
		text, err := firstText(ctx, c, f.selectors...)
		if err != nil {
			return nil, err
		}
		*f.dst = text
	}

	if site, ok, err := c.Attribute(ctx, liContactSite, "href"); err == nil && ok {
		raw.Website = site
	}

	posts, err := c.TextAll(ctx, liPosts, recentPostLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}
	raw.RecentPosts = cleanAll(posts)
	return raw, nil
}
