package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/episode"
	"github.com/jackzampolin/studio/internal/mixdown"
	"github.com/jackzampolin/studio/internal/output"
	"github.com/jackzampolin/studio/internal/storage"
	"github.com/jackzampolin/studio/internal/svcctx"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <session-id>",
	Short: "Check that a published episode's URLs resolve",
	Long: `Load the episode metadata for a session and send a HEAD request to
its podcast, art and transcript URLs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ctx := a.context(cmd.Context())
		data, err := svcctx.StoreFrom(ctx).GetBytes(ctx, storage.AliasMeta, episode.Key(args[0]))
		if err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}
		meta, err := episode.Parse(data)
		if err != nil {
			return err
		}

		checks := checkList(mixdown.Verify(ctx, a.httpClient, meta))
		if err := output.Print(checks); err != nil {
			return err
		}
		for _, c := range checks {
			if !c.OK() {
				return fmt.Errorf("%s url failed verification", c.Name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

type checkList []mixdown.Check

func (l checkList) Table() ([]string, [][]string) {
	rows := make([][]string, 0, len(l))
	for _, c := range l {
		status := "-"
		if c.Status > 0 {
			status = strconv.Itoa(c.Status)
		}
		result := "ok"
		if !c.OK() {
			result = c.Err
		}
		rows = append(rows, []string{c.Name, c.URL, status, result})
	}
	return []string{"Target", "URL", "Status", "Result"}, rows
}
