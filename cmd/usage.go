package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	renderaccounts "codex-account-manager/internal/adapters/render/accounts"
	"codex-account-manager/internal/domain"
)

func newUsageCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage [account-id]",
		Short: "Fetch usage for an account, or for the on-disk credential",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var credits domain.CreditsInfo

			fetch := func(ctx context.Context) error {
				var err error
				if len(args) == 1 {
					credits, err = app.usage.FetchForAccount(ctx, domain.AccountID(args[0]))
				} else {
					credits, err = app.usage.FetchForCredentialFile(ctx)
				}
				return err
			}

			if err := runWithSpinner(cmd.Context(), cmd.OutOrStdout(), "Fetching usage...", fetch); err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(credits)
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderaccounts.RenderCredits(credits, app.now()))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the snapshot as JSON")

	return cmd
}
