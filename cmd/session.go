package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored sign-in session for each platform",
	}
	sessionCmd.AddCommand(newSessionSetupCmd(), newSessionValidateCmd(), newSessionStatusCmd(), newSessionClearCmd())
	return sessionCmd
}

func newSessionSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup <platform>",
		Short: "Open a browser window, sign in by hand, and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := schemas.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Sign in to %s in the browser window that opens. Waiting for the home feed...\n", p)
				session, err := a.SetupSession(ctx, p)
				if err != nil {
					return err
				}
				expires := "unknown"
				if session.ExpiresAt != nil {
					expires = session.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session stored for %s (%d cookies, expires %s).\n", p, len(session.Cookies), expires)
				return nil
			})
		},
	}
}

func newSessionValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <platform>",
		Short: "Check that the stored session still signs in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := schemas.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				if !a.ValidateSession(ctx, p) {
					return fmt.Errorf("session for %s is not valid; run `socialpilot session setup %s`", p, p)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session for %s is valid.\n", p)
				return nil
			})
		},
	}
}

func newSessionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [platform...]",
		Short: "Report the state of stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			platforms, err := parsePlatforms(args)
			if err != nil {
				return err
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				for _, p := range platforms {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", p, a.SessionStatus(ctx, p))
				}
				return nil
			})
		},
	}
}

func newSessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <platform>",
		Short: "Delete the stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := schemas.ParsePlatform(args[0])
			if err != nil {
				return err
			}
			return withAutomation(cmd, func(ctx context.Context, a Automation) error {
				if err := a.ClearSession(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session for %s cleared.\n", p)
				return nil
			})
		},
	}
}
