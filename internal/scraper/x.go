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
	xUserName       = `[data-testid="UserName"]`
	xDisplayName    = `[data-testid="UserName"] span`
	xDescription    = `[data-testid="UserDescription"]`
	xLocation       = `[data-testid="UserLocation"]`
	xWebsite        = `[data-testid="UserUrl"]`
	xFollowers      = `a[href$="/verified_followers"] span span, a[href$="/followers"] span span`
	xFollowing      = `a[href$="/following"] span span`
	xTweetText      = `article [data-testid="tweetText"]`
	xPinnedContext  = `article:first-of-type [data-testid="socialContext"]`
	xProfileMissing = `[data-testid="emptyState"]`
)

var xHandle = regexp.MustCompile(`^@?([A-Za-z0-9_]{1,15})$`)

type xExtractor struct{}

func (xExtractor) Platform() schemas.Platform { return schemas.PlatformX }

func (xExtractor) ProfileURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if m := xHandle.FindStringSubmatch(target); m != nil {
		return "https://x.com/" + m[1], nil
	}
	u, err := url.Parse(target)
	if err != nil || !platform.MustLookup(schemas.PlatformX).OwnsURL(target) {
		return "", fmt.Errorf("%q is not an X profile", target)
	}
	handle := strings.Trim(u.Path, "/")
	if i := strings.IndexByte(handle, '/'); i >= 0 {
		handle = handle[:i]
	}
	if !xHandle.MatchString(handle) {
		return "", fmt.Errorf("%q is not an X profile", target)
	}
	return "https://x.com/" + handle, nil
}

func (xExtractor) ValidateSession(ctx context.Context, c browser.Context) (bool, error) {
	return c.Exists(ctx, platform.MustLookup(schemas.PlatformX).LoggedInSelector)
}

func (xExtractor) ExtractProfile(ctx context.Context, c browser.Context, timeout time.Duration) (*schemas.RawProfileData, error) {
	if err := c.WaitVisible(ctx, xUserName, timeout); err != nil {
		if missing, _ := c.Exists(ctx, xProfileMissing); missing {
			return nil, fmt.Errorf("profile does not exist or is suspended")
		}
		return nil, fmt.Errorf("profile content did not load: %w", err)
	}

	raw := &schemas.RawProfileData{Platform: schemas.PlatformX}
	var err error
	if raw.Name, err = firstText(ctx, c, xDisplayName); err != nil {
		return nil, err
	}
	if raw.Bio, err = firstText(ctx, c, xDescription); err != nil {
		return nil, err
	}
	if raw.Location, err = firstText(ctx, c, xLocation); err != nil {
		return nil, err
	}
	if raw.Website, err = firstText(ctx, c, xWebsite); err != nil {
		return nil, err
	}
	if raw.FollowerCount, err = firstText(ctx, c, xFollowers); err != nil {
		return nil, err
	}
	if raw.FollowingCount, err = firstText(ctx, c, xFollowing); err != nil {
		return nil, err
	}

	posts, err := c.TextAll(ctx, xTweetText, recentPostLimit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to read posts: %w", err)
	}
	posts = cleanAll(posts)
	pinned, err := firstText(ctx, c, xPinnedContext)
	if err != nil {
		return nil, err
	}
	if len(posts) > 0 && strings.Contains(strings.ToLower(pinned), "pinned") {
		raw.PinnedContent, posts = posts[0], posts[1:]
	}
	if len(posts) > recentPostLimit {
		posts = posts[:recentPostLimit]
	}
	raw.RecentPosts = posts
	return raw, nil
}
