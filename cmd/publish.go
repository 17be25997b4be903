package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

// errPublishFailed signals a non-zero exit after the result has been printed.
var errPublishFailed = errors.New("publish failed")

func newPublishCmd() *cobra.Command {
	var (
		platformName string
		mode         string
		text         string
		media        []string
		thread       []string
		itemID       string
	)

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a post or thread through the stored session",
		Long: `Publish composes a post in the browser. In auto mode the post is submitted
automatically. In review mode the composer is left open for you to edit and submit,
and the command waits until the compose window closes.

Thread items after the first are given with --thread. Media for the first item is
given with --media; media for thread items uses --media <n>=<id>, where n counts
thread items from 1.`,
		Example: `  socialpilot publish --platform x --text "Shipping today" --media launch-banner
  socialpilot publish --platform x --mode review --item post-42 --text "1/" --thread "2/" --media 1=chart`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := schemas.ParsePlatform(platformName)
			if err != nil {
				return err
			}
			req, err := buildPublishRequest(p, schemas.PublishMode(mode), text, media, thread, itemID)
			if err != nil {
				return err
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				res := a.Publish(ctx, req)
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("%w: %s", errPublishFailed, res.ErrorCode)
				}
				return nil
			})
		},
	}

	publishCmd.Flags().StringVarP(&platformName, "platform", "p", "", "platform to publish on (x, linkedin)")
	publishCmd.Flags().StringVarP(&mode, "mode", "m", string(schemas.ModeAuto), "auto or review")
	publishCmd.Flags().StringVarP(&text, "text", "t", "", "text of the post or first thread item")
	publishCmd.Flags().StringArrayVar(&media, "media", nil, "media asset id, repeatable; prefix with <n>= for thread item n")
	publishCmd.Flags().StringArrayVar(&thread, "thread", nil, "text of an additional thread item, repeatable")
	publishCmd.Flags().StringVar(&itemID, "item", "", "content item id (required in review mode)")
	_ = publishCmd.MarkFlagRequired("platform")
	return publishCmd
}

func buildPublishRequest(p schemas.Platform, mode schemas.PublishMode, text string, media, thread []string, itemID string) (schemas.PublishRequest, error) {
	req := schemas.PublishRequest{
		Platform:      p,
		Mode:          mode,
		Text:          text,
		ThreadTexts:   thread,
		ContentItemID: itemID,
	}
	if len(thread) > 0 {
		req.ThreadMediaIDs = make([][]string, len(thread))
	}
	for _, m := range media {
		idx, id, ok := strings.Cut(m, "=")
		if !ok {
			req.MediaAssetIDs = append(req.MediaAssetIDs, m)
			continue
		}
		var n int
		if _, err := fmt.Sscanf(idx, "%d", &n); err != nil || n < 1 || n > len(thread) {
			return req, fmt.Errorf("invalid --media %q: thread item %q does not exist", m, idx)
		}
		req.ThreadMediaIDs[n-1] = append(req.ThreadMediaIDs[n-1], id)
	}
	return req, nil
}
