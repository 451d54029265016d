package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/jobs"
	"github.com/jackzampolin/studio/internal/output"
	"github.com/jackzampolin/studio/internal/pipeline"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/svcctx"
)

var (
	produceSession   string
	produceFromStore bool
)

var produceCmd = &cobra.Command{
	Use:   "produce [transcript-file]",
	Short: "Produce one episode from a transcript",
	Long: `Run a full session: chunk the transcript, synthesize each chunk,
merge the segments, apply the effects chain, and publish the episode.

With --from-store the transcript chunks persisted by an earlier run are
reloaded from the rawtext bucket instead of reading a file.

Examples:
  studio produce episode.txt
  studio produce episode.txt --session TT-20240301-ep12
  studio produce --from-store --session TT-20240301-ep12`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var transcript string
		switch {
		case produceFromStore && produceSession == "":
			return errors.New("--from-store requires --session")
		case produceFromStore:
		case len(args) == 0:
			return errors.New("a transcript file is required")
		default:
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			transcript = string(data)
		}

		if produceSession == "" {
			produceSession = session.NewID(time.Now())
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ctx := a.context(cmd.Context())
		ticket, err := submitSession(ctx, produceSession, transcript, produceFromStore)
		if err != nil {
			return err
		}

		result, runErr := ticket.Wait(ctx)
		if outcome, ok := result.(*pipeline.Outcome); ok && outcome != nil {
			if err := output.Print(summarize(outcome, runErr)); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	produceCmd.Flags().StringVar(&produceSession, "session", "", "session id (default: generated)")
	produceCmd.Flags().BoolVar(&produceFromStore, "from-store", false, "reload persisted transcript chunks")
	rootCmd.AddCommand(produceCmd)
}

// submitSession queues a producer run on the executor from ctx.
func submitSession(ctx context.Context, sessionID, transcript string, fromStore bool) (*jobs.Ticket, error) {
	producer := svcctx.ProducerFrom(ctx)
	executor := svcctx.ExecutorFrom(ctx)
	if producer == nil || executor == nil {
		return nil, errors.New("producer is not configured")
	}

	ticket, err := executor.Submit(jobs.Job{
		SessionID: sessionID,
		Run: func(ctx context.Context) (any, error) {
			if fromStore {
				return producer.ProduceFromStore(ctx, sessionID)
			}
			return producer.Produce(ctx, sessionID, transcript)
		},
	})
	if err != nil {
		return nil, err
	}
	svcctx.LoggerFrom(ctx).Info("session queued", "session_id", sessionID, "ticket", ticket.ID)
	return ticket, nil
}

type outcomeSummary struct {
	SessionID     string   `json:"session_id" yaml:"session_id"`
	State         string   `json:"state" yaml:"state"`
	Chunks        int      `json:"chunks" yaml:"chunks"`
	Segments      int      `json:"segments" yaml:"segments"`
	Failed        int      `json:"failed" yaml:"failed"`
	MergeRounds   int      `json:"merge_rounds" yaml:"merge_rounds"`
	FallbackStage int      `json:"fallback_stage,omitempty" yaml:"fallback_stage,omitempty"`
	PodcastURL    string   `json:"podcast_url,omitempty" yaml:"podcast_url,omitempty"`
	Duration      *float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Purged        int      `json:"purged,omitempty" yaml:"purged,omitempty"`
	Elapsed       string   `json:"elapsed" yaml:"elapsed"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func summarize(o *pipeline.Outcome, err error) outcomeSummary {
	s := outcomeSummary{
		SessionID: o.SessionID,
		State:     string(o.State),
		Chunks:    o.Chunks,
		Segments:  o.Synthesis.Successful(),
		Failed:    o.Synthesis.Failed(),
		Purged:    o.Purged,
		Elapsed:   o.Elapsed.Round(time.Millisecond).String(),
	}
	if o.Merge != nil {
		s.MergeRounds = o.Merge.Rounds
	}
	if o.Edit != nil {
		s.FallbackStage = o.Edit.FallbackStage
	}
	if o.Episode != nil {
		s.PodcastURL = o.Episode.URL
		s.Duration = o.Episode.Duration
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func (s outcomeSummary) Table() ([]string, [][]string) {
	duration := "-"
	if s.Duration != nil {
		duration = strconv.FormatFloat(*s.Duration, 'f', 3, 64) + "s"
	}
	rows := [][]string{
		{"Session", s.SessionID},
		{"State", s.State},
		{"Chunks", strconv.Itoa(s.Chunks)},
		{"Segments", fmt.Sprintf("%d ok, %d failed", s.Segments, s.Failed)},
		{"Merge rounds", strconv.Itoa(s.MergeRounds)},
		{"Fallback stage", strconv.Itoa(s.FallbackStage)},
		{"Podcast URL", s.PodcastURL},
		{"Duration", duration},
		{"Elapsed", s.Elapsed},
	}
	if s.Error != "" {
		rows = append(rows, []string{"Error", s.Error})
	}
	return []string{"Field", "Value"}, rows
}
