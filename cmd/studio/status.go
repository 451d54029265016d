package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/output"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/svcctx"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show session ledger entries",
	Long: `Show the most recent sessions, or one session by id.

Examples:
  studio status
  studio status --limit 50 -o json
  studio status TT-20240301-ep12`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ctx := a.context(cmd.Context())
		ledger := svcctx.LedgerFrom(ctx)

		if len(args) == 1 {
			rec, err := ledger.Get(ctx, args[0])
			if errors.Is(err, session.ErrNotFound) {
				return fmt.Errorf("no session %q in the ledger", args[0])
			}
			if err != nil {
				return err
			}
			return output.Print(recordList{rec})
		}

		recs, err := ledger.List(ctx, statusLimit)
		if err != nil {
			return err
		}
		return output.Print(recordList(recs))
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum sessions to list")
	rootCmd.AddCommand(statusCmd)
}

type recordList []session.Record

func (l recordList) Table() ([]string, [][]string) {
	headers := []string{"Session", "State", "Chunks", "Segments", "Failed", "Fallback", "Updated", "Podcast URL / Error"}
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		detail := r.PodcastURL
		if r.Error != "" {
			detail = r.Error
		}
		fallback := "-"
		if r.FallbackStage > 0 {
			fallback = strconv.Itoa(r.FallbackStage)
		}
		rows = append(rows, []string{
			r.ID,
			string(r.State),
			strconv.Itoa(r.Chunks),
			strconv.Itoa(r.Segments),
			strconv.Itoa(r.Failed),
			fallback,
			r.UpdatedAt.Local().Format(time.DateTime),
			detail,
		})
	}
	return headers, rows
}
