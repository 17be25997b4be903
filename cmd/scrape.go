package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/enrichment"
	"github.com/xkilldash9x/socialpilot/internal/observability"
)

// scrapeOutput is one profile result, optionally with extracted fields.
type scrapeOutput struct {
	schemas.ProfileResult
	Parsed *schemas.ParsedProfileData `json:"parsed,omitempty"`
}

func newScrapeCmd() *cobra.Command {
	var (
		platformName string
		enrich       bool
		pacing       pacingFlags
	)

	scrapeCmd := &cobra.Command{
		Use:   "scrape <profile>...",
		Short: "Read public profile data in one paced batch",
		Example: `  socialpilot scrape --platform x @jack @ev
  socialpilot scrape --platform linkedin --enrich in/satyanadella
  socialpilot scrape --platform x --batch-limit 5 --min-delay 10s --max-delay 20s @jack`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := schemas.ParsePlatform(platformName)
			if err != nil {
				return err
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				results, batchErr := a.ScrapeProfiles(ctx, p, args, pacing.options()...)

				out := make([]scrapeOutput, 0, len(results))
				for _, r := range results {
					o := scrapeOutput{ProfileResult: r}
					if enrich && r.Profile != nil {
						_, parsed, err := a.EnrichProfile(ctx, enrichment.Contact{}, r.Profile)
						if err != nil {
							observability.GetLogger().Warn("Profile enrichment failed.", zap.String("url", r.URL), zap.Error(err))
						}
						o.Parsed = parsed
					}
					out = append(out, o)
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				return batchErr
			})
		},
	}
	scrapeCmd.Flags().StringVarP(&platformName, "platform", "p", "", "platform to read from (x, linkedin)")
	scrapeCmd.Flags().BoolVar(&enrich, "enrich", false, "extract structured fields with the configured LLM")
	pacing.register(scrapeCmd)
	_ = scrapeCmd.MarkFlagRequired("platform")
	return scrapeCmd
}
