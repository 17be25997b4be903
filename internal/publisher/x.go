package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

const (
	xHome           = "https://x.com/home"
	xNewPostButton  = `[data-testid="SideNav_NewTweet_Button"]`
	xDialog         = `div[role="dialog"][aria-modal="true"]`
	xEditorFmt      = `div[role="dialog"] [data-testid="tweetTextarea_%d"]`
	xAddItem        = `div[role="dialog"] [data-testid="addButton"]`
	xFileInput      = `div[role="dialog"] input[data-testid="fileInput"]`
	xAttachmentsFmt = `div[role="dialog"] [data-testid="cellInnerDiv"]:nth-child(%d) [data-testid="attachments"]`
	xSubmit         = `div[role="dialog"] [data-testid="tweetButton"]`
	xProfileLink    = `[data-testid="AppTabBar_Profile_Link"]`
	xStatusLink     = `article a[href*="/status/"]`

	xStatusLinksJS = `Array.from(document.querySelectorAll('article a[href*="/status/"] time')).map(t => t.parentElement.getAttribute('href'))`
)

type xComposer struct{}

func (xComposer) Platform() schemas.Platform { return schemas.PlatformX }
func (xComposer) HomeURL() string            { return xHome }
func (xComposer) SupportsThreads() bool      { return true }
func (xComposer) MaxMediaPerItem() int       { return 4 }
func (xComposer) SurfaceSelector() string    { return xDialog }

func (xComposer) Open(ctx context.Context, pg *page) error {
	return clickAndWait(ctx, pg, xNewPostButton, fmt.Sprintf(xEditorFmt, 0))
}

func (xComposer) AddItem(ctx context.Context, pg *page, i int) error {
	return clickAndWait(ctx, pg, xAddItem, fmt.Sprintf(xEditorFmt, i))
}

func (xComposer) TypeItem(ctx context.Context, pg *page, i int, text string) error {
	return pg.human.Type(ctx, fmt.Sprintf(xEditorFmt, i), text)
}

func (xComposer) Attach(ctx context.Context, pg *page, i int, files []string, timeout time.Duration) error {
	// The file input uploads into whichever item has focus.
	if err := pg.human.Click(ctx, fmt.Sprintf(xEditorFmt, i)); err != nil {
		return err
	}
	if err := pg.c.SetUploadFiles(ctx, xFileInput, files); err != nil {
		return err
	}
	return pg.c.WaitVisible(ctx, fmt.Sprintf(xAttachmentsFmt, i+1), timeout)
}

func (xComposer) Submit(ctx context.Context, pg *page) error {
	return pg.human.Click(ctx, xSubmit)
}

func (xComposer) Verify(ctx context.Context, pg *page) (string, string, error) {
	href, ok, err := pg.c.Attribute(ctx, xProfileLink, "href")
	if err != nil {
		return "", "", err
	}
	if !ok || href == "" {
		return "", "", errors.New("profile link not found")
	}
	if err := pg.c.Navigate(ctx, "https://x.com"+href); err != nil {
		return "", "", err
	}
	if err := pg.c.WaitVisible(ctx, xStatusLink, pg.timeout); err != nil {
		return "", "", fmt.Errorf("no posts on profile: %w", err)
	}
	var hrefs []string
	if err := pg.c.Evaluate(ctx, xStatusLinksJS, &hrefs); err != nil {
		return "", "", err
	}
	path, id := newestStatus(hrefs)
	if id == "" {
		return "", "", errors.New("no status links found")
	}
	return "https://x.com" + path, id, nil
}

// newestStatus picks the link with the highest status id. Ids grow over time, and the
// first article on a profile may be a pinned post.
func newestStatus(hrefs []string) (string, string) {
	var bestPath, bestID string
	for _, h := range hrefs {
		idx := strings.Index(h, "/status/")
		if idx < 0 {
			continue
		}
		id := h[idx+len("/status/"):]
		if j := strings.IndexAny(id, "/?#"); j >= 0 {
			id = id[:j]
		}
		if id == "" || strings.Trim(id, "0123456789") != "" {
			continue
		}
		if len(id) > len(bestID) || (len(id) == len(bestID) && id > bestID) {
			bestPath, bestID = h[:idx+len("/status/")+len(id)], id
		}
	}
	return bestPath, bestID
}
