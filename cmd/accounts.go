package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	renderaccounts "codex-account-manager/internal/adapters/render/accounts"
	"codex-account-manager/internal/application"
	"codex-account-manager/internal/domain"
)

func newAccountsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List managed accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := app.accounts.GetAccounts(cmd.Context())
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the view as JSON")

	return cmd
}

func newImportCmd(app *app) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the credential currently in auth.json as a managed account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.accounts.ImportCurrentAccount(cmd.Context(), label)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return writeView(cmd, app, result.View, false)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Label for the imported account")

	return cmd
}

func newSwitchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <account-id>",
		Short: "Make an account active and write its credential to auth.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := app.accounts.SwitchAccount(cmd.Context(), domain.AccountID(args[0]))
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, false)
		},
	}
}

func newMoveCmd(app *app) *cobra.Command {
	var (
		bucket string
		index  int
		stay   bool
	)

	cmd := &cobra.Command{
		Use:   "move <account-id>",
		Short: "Move an account to a bucket position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var switchAway *bool
			if stay {
				value := false
				switchAway = &value
			}

			view, err := app.accounts.MoveAccount(cmd.Context(), domain.AccountID(args[0]), domain.Bucket(bucket), index, switchAway)
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, false)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", string(domain.BucketActive), "Target bucket: active, depleted, or frozen")
	cmd.Flags().IntVar(&index, "index", 0, "Position within the bucket")
	cmd.Flags().BoolVar(&stay, "no-switch", false, "Do not activate a fallback when moving the active account away")

	return cmd
}

func newArchiveCmd(app *app) *cobra.Command {
	var stay bool

	cmd := &cobra.Command{
		Use:   "archive <account-id>",
		Short: "Move an account to the archived bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var switchAway *bool
			if stay {
				value := false
				switchAway = &value
			}

			view, err := app.accounts.ArchiveAccount(cmd.Context(), domain.AccountID(args[0]), switchAway)
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, false)
		},
	}

	cmd.Flags().BoolVar(&stay, "no-switch", false, "Do not activate a fallback when archiving the active account")

	return cmd
}

func newUnarchiveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <account-id>",
		Short: "Move an account back to the active bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := app.accounts.UnarchiveAccount(cmd.Context(), domain.AccountID(args[0]))
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, false)
		},
	}
}

func newRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Delete a managed account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := app.accounts.RemoveAccount(cmd.Context(), domain.AccountID(args[0]))
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, false)
		},
	}
}

func newLabelCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "label <account-id> [label]",
		Short: "Set or clear an account label",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) == 2 {
				label = args[1]
			}

			view, err := app.accounts.SetAccountLabel(cmd.Context(), domain.AccountID(args[0]), label)
			if err != nil {
				return err
			}
			return writeView(cmd, app, view, false)
		},
	}
}

func writeView(cmd *cobra.Command, app *app, view application.AccountsView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	usage, err := app.usage.CachedUsage(cmd.Context())
	if err != nil {
		return err
	}

	rendered := renderaccounts.Render(view, renderaccounts.RenderOptions{
		Now:   app.now(),
		Usage: usage,
	})
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
