package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/studio/internal/config"
	"github.com/jackzampolin/studio/internal/inbox"
	"github.com/jackzampolin/studio/internal/pipeline"
	"github.com/jackzampolin/studio/internal/svcctx"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Produce episodes for transcripts dropped into the inbox",
	Long: `Watch the inbox directory and queue a session for every *.txt
transcript that appears. The file name (without extension) becomes the
session id. Submitted transcripts move to inbox/processed.

The config file is watched too. Reloads are logged; running services keep
the settings they started with until the watcher is restarted.

Examples:
  studio watch
  studio watch --dir /srv/transcripts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		ctx := a.context(cmd.Context())
		logger := svcctx.LoggerFrom(ctx)

		mgr := svcctx.ConfigFrom(ctx)
		mgr.OnChange(func(c *config.Config) {
			logger.Info("config reloaded", "path", mgr.ConfigFileUsed(), "log_level", c.Logging.Level)
		})
		mgr.WatchConfig()

		dir := watchDir
		if dir == "" {
			dir = svcctx.HomeFrom(ctx).InboxDir()
		}

		w, err := inbox.New(inbox.Config{
			Dir: dir,
			Submit: func(ctx context.Context, sessionID, transcript string) error {
				ticket, err := submitSession(ctx, sessionID, transcript, false)
				if err != nil {
					return err
				}
				go reportTicket(ctx, ticket.SessionID, ticket.Wait)
				return nil
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "inbox directory (default: <home>/inbox)")
	rootCmd.AddCommand(watchCmd)
}

// reportTicket logs the outcome of a queued session once it finishes.
func reportTicket(ctx context.Context, sessionID string, wait func(context.Context) (any, error)) {
	logger := svcctx.LoggerFrom(ctx).With("session_id", sessionID)
	result, err := wait(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error("queued session failed", "error", err)
		return
	}
	if o, ok := result.(*pipeline.Outcome); ok && o.Episode != nil {
		logger.Info("queued session published", "podcast_url", o.Episode.URL)
	}
}
