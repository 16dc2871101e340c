package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// A .env in the working directory can override CAM_* config values
	// during development; absence is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "cam",
		Short:         "Codex account manager: multiple ChatGPT/API-key credentials for one Codex CLI",
		Long:          "cam manages a pool of Codex CLI credentials: import, browser and API-key login, switching the on-disk auth.json, usage tracking, and automatic rotation when an account runs out of quota.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountsCmd(app),
		newImportCmd(app),
		newLoginCmd(app),
		newSwitchCmd(app),
		newMoveCmd(app),
		newArchiveCmd(app),
		newUnarchiveCmd(app),
		newRemoveCmd(app),
		newLabelCmd(app),
		newUsageCmd(app),
		newPolicyCmd(app),
		newRPCCmd(app),
	)

	return rootCmd
}
