package main

import (
	"math"

	"github.com/spf13/cobra"
)

var (
	replayFromSeq int64
	replayToSeq   int64
	replayMax     int64
)

var replayCmd = &cobra.Command{
	Use:   "replay <persistence-id>",
	Short: "Replay the event stream for one persistence id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		persistenceID := args[0]

		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()

		toSeq := replayToSeq
		if toSeq <= 0 {
			toSeq = math.MaxInt64
		}
		max := replayMax
		if max <= 0 {
			max = math.MaxInt64
		}

		results, err := j.Messages(cmd.Context(), persistenceID, replayFromSeq, toSeq, max)
		if err != nil {
			return err
		}
		for _, res := range results {
			if res.Err != nil {
				printEnvelope(map[string]any{"error": res.Err.Error()})
				continue
			}
			printEnvelope(map[string]any{
				"ordering":       res.Envelope.Ordering,
				"persistence_id": res.Envelope.PersistenceID,
				"sequence_nr":    res.Envelope.SequenceNr,
				"event":          res.Envelope.Event,
			})
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().Int64Var(&replayFromSeq, "from-seq", 0, "lowest sequence number to include")
	replayCmd.Flags().Int64Var(&replayToSeq, "to-seq", 0, "highest sequence number to include (0 = unbounded)")
	replayCmd.Flags().Int64Var(&replayMax, "max", 0, "maximum rows to return (0 = unbounded)")
}
