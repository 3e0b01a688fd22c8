package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

var highestSeqFromSeq int64

var highestSeqCmd = &cobra.Command{
	Use:   "highest-seq <persistence-id>",
	Short: "Report the highest sequence number observed for a persistence id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		persistenceID := args[0]

		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()

		max, err := j.HighestSequenceNr(cmd.Context(), persistenceID, highestSeqFromSeq)
		if err != nil {
			return err
		}
		printResult(map[string]any{
			"persistence_id":  persistenceID,
			"max_sequence_nr": max,
		})
		return nil
	},
}

func init() {
	highestSeqCmd.Flags().Int64Var(&highestSeqFromSeq, "from-seq", 0, "only consider sequence numbers greater than this")
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
