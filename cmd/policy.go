package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"codex-account-manager/internal/application"
)

func newPolicyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Quota policy operations",
	}

	cmd.AddCommand(newPolicySyncCmd(app))

	return cmd
}

func newPolicySyncCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one quota policy pass: switch, archive, restore",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var report application.PolicyReport
			apply := func(ctx context.Context) error {
				var err error
				report, err = app.policy.Apply(ctx)
				return err
			}

			if err := runWithSpinner(cmd.Context(), cmd.OutOrStdout(), "Applying quota policy...", apply); err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			if report.Skipped {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "A policy pass is already running; skipped.")
				return err
			}

			if report.SwitchedTo != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched active account to %s\n", report.SwitchedTo)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Archived %d, restored %d accounts.\n", len(report.Archived), len(report.Restored))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")

	return cmd
}
