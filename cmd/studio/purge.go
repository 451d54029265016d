package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/output"
	"github.com/jackzampolin/studio/internal/storage"
	"github.com/jackzampolin/studio/internal/svcctx"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <session-id>",
	Short: "Delete a session's intermediate artifacts",
	Long: `Delete the chunk, merged, edited and raw text objects of a session.
The published episode and its metadata are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ctx := a.context(cmd.Context())
		n, err := storage.PurgeSession(ctx, svcctx.StoreFrom(ctx), args[0], svcctx.LoggerFrom(ctx))
		if perr := output.Print(map[string]any{"session_id": args[0], "deleted": n}); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("purge incomplete: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
