package main

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <persistence-id> <max-seq>",
	Short: "Run the delete protocol up to and including max-seq",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		persistenceID := args[0]
		maxSeq, err := parseInt64(args[1])
		if err != nil {
			return err
		}

		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()

		if err := j.Delete(cmd.Context(), persistenceID, maxSeq); err != nil {
			return err
		}
		printResult(map[string]any{
			"persistence_id":  persistenceID,
			"max_sequence_nr": maxSeq,
			"status":          "deleted",
		})
		return nil
	},
}
