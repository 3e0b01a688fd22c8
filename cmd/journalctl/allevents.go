package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/relaydb/sqljournal/internal/cursor"
)

var (
	allEventsOffset int64
	allEventsLive   bool
)

var allEventsCmd = &cobra.Command{
	Use:   "all-events",
	Short: "Stream every event in global ordering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		mode := cursor.ModeCurrent
		if allEventsLive {
			mode = cursor.ModeLive
		}

		final, err := j.AllEvents(ctx, allEventsOffset, mode, emitEnvelope)
		if err != nil && err != context.Canceled {
			return err
		}
		if !jsonOutput {
			printResult(map[string]any{"ordering": final, "status": "caught up"})
		}
		return nil
	},
}

func init() {
	allEventsCmd.Flags().Int64Var(&allEventsOffset, "offset", 0, "resume strictly after this ordering value")
	allEventsCmd.Flags().BoolVar(&allEventsLive, "live", false, "keep streaming new events until interrupted")
}
