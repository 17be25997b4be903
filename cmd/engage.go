package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

func newEngageCmd() *cobra.Command {
	var (
		platformName string
		action       string
		replyText    string
		pacing       pacingFlags
	)

	engageCmd := &cobra.Command{
		Use:   "engage <post-url>...",
		Short: "Like, retweet or reply to posts in one paced batch",
		Example: `  socialpilot engage --platform x --action like https://x.com/jack/status/20
  socialpilot engage --platform x --action reply --text "Congrats!" https://x.com/jack/status/20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := schemas.ParsePlatform(platformName)
			if err != nil {
				return err
			}
			reqs := make([]schemas.EngagementRequest, 0, len(args))
			for _, url := range args {
				reqs = append(reqs, schemas.EngagementRequest{
					Platform:  p,
					PostURL:   url,
					Action:    schemas.EngagementAction(action),
					ReplyText: replyText,
				})
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				results, batchErr := a.EngageBatch(ctx, reqs, pacing.options()...)
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
				return batchErr
			})
		},
	}
	engageCmd.Flags().StringVarP(&platformName, "platform", "p", "", "platform of the posts (x, linkedin)")
	engageCmd.Flags().StringVarP(&action, "action", "a", string(schemas.EngageLike), "like, retweet or reply")
	engageCmd.Flags().StringVarP(&replyText, "text", "t", "", "reply text for --action reply")
	pacing.register(engageCmd)
	_ = engageCmd.MarkFlagRequired("platform")
	return engageCmd
}
