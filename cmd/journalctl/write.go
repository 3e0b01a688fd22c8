package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydb/sqljournal/internal/serializer"
)

var (
	writePayload  string
	writeManifest string
	writeSeqNr    int64
	writeTags     []string
)

var writeCmd = &cobra.Command{
	Use:   "write <persistence-id>",
	Short: "Write a single event as one atomic write",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		persistenceID := args[0]

		var payload any
		if writePayload != "" {
			if err := json.Unmarshal([]byte(writePayload), &payload); err != nil {
				return fmt.Errorf("parsing --payload as JSON: %w", err)
			}
		}

		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()
		if err := j.Start(cmd.Context()); err != nil {
			return err
		}

		write := serializer.AtomicWrite{
			PersistenceID: persistenceID,
			Payloads: []serializer.PersistentRepr{
				{
					PersistenceID: persistenceID,
					SequenceNr:    writeSeqNr,
					Payload:       payload,
					Manifest:      writeManifest,
					Tags:          writeTags,
				},
			},
		}

		errs, callErr := j.WriteMessages(cmd.Context(), []serializer.AtomicWrite{write}, time.Now().UnixMilli())
		if callErr != nil {
			return callErr
		}
		if errs[0] != nil {
			return errs[0]
		}

		printResult(map[string]any{
			"persistence_id": persistenceID,
			"sequence_nr":    writeSeqNr,
			"status":         "written",
		})
		return nil
	},
}

func init() {
	writeCmd.Flags().StringVar(&writePayload, "payload", "", "JSON-encoded event payload")
	writeCmd.Flags().StringVar(&writeManifest, "manifest", "", "payload type manifest")
	writeCmd.Flags().Int64Var(&writeSeqNr, "seq", 1, "sequence number for this event")
	writeCmd.Flags().StringSliceVar(&writeTags, "tag", nil, "tag to attach (repeatable)")
}
