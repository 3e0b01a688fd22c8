package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaydb/sqljournal/internal/idgen"
	"github.com/relaydb/sqljournal/internal/serializer"
)

var (
	seedCount      int
	seedEventsEach int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write demo events under freshly generated persistence ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal(cmd.Context())
		if err != nil {
			return err
		}
		defer j.Stop()
		if err := j.Start(cmd.Context()); err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		var writes []serializer.AtomicWrite
		for i := 0; i < seedCount; i++ {
			pid, err := idgen.GeneratePersistenceID()
			if err != nil {
				return fmt.Errorf("generating demo persistence id: %w", err)
			}
			var payloads []serializer.PersistentRepr
			for seq := int64(1); seq <= int64(seedEventsEach); seq++ {
				payloads = append(payloads, serializer.PersistentRepr{
					PersistenceID: pid,
					SequenceNr:    seq,
					Payload:       map[string]any{"seq": seq, "demo": true},
					Manifest:      "demo.v1",
				})
			}
			writes = append(writes, serializer.AtomicWrite{PersistenceID: pid, Payloads: payloads})
		}

		errs, callErr := j.WriteMessages(cmd.Context(), writes, now)
		if callErr != nil {
			return callErr
		}
		written := 0
		for i, e := range errs {
			if e != nil {
				fmt.Printf("write %d failed: %v\n", i, e)
				continue
			}
			written++
		}
		printResult(map[string]any{"status": fmt.Sprintf("wrote %d of %d demo persistence ids", written, seedCount)})
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of demo persistence ids to create")
	seedCmd.Flags().IntVar(&seedEventsEach, "events-each", 3, "number of events per demo persistence id")
}
