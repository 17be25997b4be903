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
	liHome           = "https://www.linkedin.com/feed/"
	liStartPost      = `button.share-box-feed-entry__trigger`
	liSurface        = `div[role="dialog"] .share-creation-state`
	liEditor         = `div[role="dialog"] .ql-editor`
	liAddMedia       = `div[role="dialog"] button[aria-label="Add media"]`
	liFileInput      = `input[type="file"][id*="media-editor-file-selector"]`
	liMediaPreview   = `div[role="dialog"] .share-media-editor__preview`
	liMediaNext      = `div[role="dialog"] button.share-box-footer__primary-btn`
	liAttached       = `div[role="dialog"] .share-creation-state__media-preview`
	liSubmit         = `div[role="dialog"] button.share-actions__primary-action`
	liActivityURL    = "https://www.linkedin.com/in/me/recent-activity/all/"
	liNewestActivity = `div[data-urn^="urn:li:activity:"]`
)

type linkedInComposer struct{}

func (linkedInComposer) Platform() schemas.Platform { return schemas.PlatformLinkedIn }
func (linkedInComposer) HomeURL() string            { return liHome }
func (linkedInComposer) SupportsThreads() bool      { return false }
func (linkedInComposer) MaxMediaPerItem() int       { return 9 }
func (linkedInComposer) SurfaceSelector() string    { return liSurface }

func (linkedInComposer) Open(ctx context.Context, pg *page) error {
	return clickAndWait(ctx, pg, liStartPost, liEditor)
}

func (linkedInComposer) AddItem(context.Context, *page, int) error {
	return errors.New("linkedin does not support threaded posts")
}

func (linkedInComposer) TypeItem(ctx context.Context, pg *page, i int, text string) error {
	if i != 0 {
		return errors.New("linkedin does not support threaded posts")
	}
	return pg.human.Type(ctx, liEditor, text)
}

func (linkedInComposer) Attach(ctx context.Context, pg *page, i int, files []string, timeout time.Duration) error {
	if err := pg.human.Click(ctx, liAddMedia); err != nil {
		return err
	}
	if err := pg.c.SetUploadFiles(ctx, liFileInput, files); err != nil {
		return err
	}
	if err := pg.c.WaitVisible(ctx, liMediaPreview, timeout); err != nil {
		return fmt.Errorf("media editor did not show the upload: %w", err)
	}
	if err := pg.human.Click(ctx, liMediaNext); err != nil {
		return err
	}
	return pg.c.WaitVisible(ctx, liAttached, pg.timeout)
}

func (linkedInComposer) Submit(ctx context.Context, pg *page) error {
	return pg.human.Click(ctx, liSubmit)
}

func (linkedInComposer) Verify(ctx context.Context, pg *page) (string, string, error) {
	if err := pg.c.Navigate(ctx, liActivityURL); err != nil {
		return "", "", err
	}
	if err := pg.c.WaitVisible(ctx, liNewestActivity, pg.timeout); err != nil {
		return "", "", fmt.Errorf("no activity found: %w", err)
	}
	urn, ok, err := pg.c.Attribute(ctx, liNewestActivity, "data-urn")
	if err != nil {
		return "", "", err
	}
	if !ok || !strings.HasPrefix(urn, "urn:li:activity:") {
		return "", "", errors.New("newest activity has no urn")
	}
	return "https://www.linkedin.com/feed/update/" + urn + "/", urn, nil
}
