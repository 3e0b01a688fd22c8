package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/relaydb/sqljournal/internal/cursor"
)

var (
	persistenceIDsOffset int64
	persistenceIDsLive   bool
)

var persistenceIDsCmd = &cobra.Command{
	Use:   "persistence-ids",
	Short: "Stream distinct persistence ids observed in global ordering",
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
		if persistenceIDsLive {
			mode = cursor.ModeLive
		}

		final, err := j.PersistenceIDs(ctx, persistenceIDsOffset, mode, func(pid string) error {
			printResult(map[string]any{"persistence_id": pid})
			return nil
		})
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
	persistenceIDsCmd.Flags().Int64Var(&persistenceIDsOffset, "offset", 0, "resume strictly after this ordering value")
	persistenceIDsCmd.Flags().BoolVar(&persistenceIDsLive, "live", false, "keep streaming until interrupted")
}
