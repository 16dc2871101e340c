package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newRPCCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Run one JSON op request from stdin and print the response",
		Long:  `Reads a single JSON request like {"op":"getAccounts"} from stdin, dispatches it, and prints the {"ok":...} response envelope. Intended for embedding cam in other tools.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read request: %w", err)
			}

			response := app.bridge.Handle(cmd.Context(), raw)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(response)
		},
	}
}
