package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Add an account through a login flow",
	}

	cmd.AddCommand(newLoginBrowserCmd(app), newLoginAPIKeyCmd(app))

	return cmd
}

func newLoginBrowserCmd(app *app) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "browser",
		Short: "Log in through the browser OAuth flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			start, err := app.login.BeginLogin(ctx, label)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Complete the login in your browser. If it did not open, visit:\n%s\n", start.AuthURL)

			callbackURL, err := app.login.ListenForCallback(ctx)
			if err != nil {
				return fmt.Errorf("wait for oauth callback: %w", err)
			}

			result, err := app.login.CompleteLogin(ctx, callbackURL)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return writeView(cmd, app, result.View, false)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Label for the added account")

	return cmd
}

func newLoginAPIKeyCmd(app *app) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "apikey <key>",
		Short: "Add an account from a raw API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.login.LoginWithAPIKey(cmd.Context(), args[0], label)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return writeView(cmd, app, result.View, false)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Label for the added account")

	return cmd
}
