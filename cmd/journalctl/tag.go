package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/relaydb/sqljournal/internal/cursor"
	"github.com/relaydb/sqljournal/internal/serializer"
)

var (
	tagOffset int64
	tagLive   bool
)

var tagCmd = &cobra.Command{
	Use:   "tag <tag-value>",
	Short: "Stream events carrying a given tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag := args[0]

		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		mode := cursor.ModeCurrent
		if tagLive {
			mode = cursor.ModeLive
		}

		final, err := j.EventsByTag(ctx, tag, tagOffset, mode, emitEnvelope)
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
	tagCmd.Flags().Int64Var(&tagOffset, "offset", 0, "resume strictly after this ordering value")
	tagCmd.Flags().BoolVar(&tagLive, "live", false, "keep streaming new events until interrupted")
}

func emitEnvelope(e serializer.Envelope) error {
	printEnvelope(map[string]any{
		"ordering":       e.Ordering,
		"persistence_id": e.PersistenceID,
		"sequence_nr":    e.SequenceNr,
		"event":          e.Event,
	})
	return nil
}
