package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaydb/sqljournal/internal/config"
	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/journal"
	"github.com/relaydb/sqljournal/internal/notify"
	"github.com/relaydb/sqljournal/internal/serializer"
	"github.com/relaydb/sqljournal/internal/ui"
	"github.com/relaydb/sqljournal/internal/write"
)

var (
	jsonOutput  bool
	remoteName  string
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "journalctl",
	Short: "Operator CLI for a sqljournal deployment",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColorFlag {
			ui.ForceNoColor()
			useColor = false
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&remoteName, "remote", "", "named connection profile from remotes.toml")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable ANSI color in tail output")

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(allEventsCmd)
	rootCmd.AddCommand(persistenceIDsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(highestSeqCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(remoteCmd)
}

// resolveConfig loads JOURNAL_-prefixed env config, applying a named
// remotes.toml profile's overrides first when --remote is given.
func resolveConfig() (*config.Config, error) {
	if remoteName != "" {
		remotes, err := config.LoadRemotes()
		if err != nil {
			return nil, fmt.Errorf("loading remotes.toml: %w", err)
		}
		rem, ok := remotes.Remotes[remoteName]
		if !ok {
			return nil, fmt.Errorf("no remote named %q in remotes.toml", remoteName)
		}
		os.Setenv("JOURNAL_CONNECTION_STRING", rem.ConnectionString)
		if rem.TagMode != "" {
			os.Setenv("JOURNAL_TAG_MODE", rem.TagMode)
		}
		if rem.NATSURL != "" {
			os.Setenv("JOURNAL_NATS_URL", rem.NATSURL)
		}
	}
	return config.Load()
}

// openJournal opens a database connection and wires a journal.Journal
// from the resolved config. Callers must call Stop(), which also closes
// the database connection; it is safe to call for read-only commands
// that never Start the write pipeline.
func openJournal(ctx context.Context) (*journal.Journal, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}

	db, err := dbconn.Open(ctx, dbconn.Config{
		ConnectionString:   cfg.ConnectionString,
		ProviderName:       cfg.ProviderName,
		Parallelism:        cfg.Parallelism,
		TagMode:            cfg.TagMode,
		AutoInitialize:     cfg.AutoInitialize,
		UseCloneConnection: cfg.UseCloneConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	ser := serializer.NewJSONSerializer()

	var jOpts []journal.Option
	if cfg.NATSURL != "" {
		notifier, err := notify.NewNATSNotifier(cfg.NATSURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		jOpts = append(jOpts, journal.WithCommitNotifier(notifier), journal.WithNATSURL(cfg.NATSURL))
	}

	j := journal.New(db, ser,
		writeConfigFrom(cfg),
		readConfigFrom(cfg),
		cfg.DeleteCompatibilityMode,
		jOpts...,
	)
	return j, nil
}

func writeConfigFrom(cfg *config.Config) write.Config {
	return write.Config{
		BufferSize:                       cfg.BufferSize,
		BatchSize:                        cfg.BatchSize,
		Parallelism:                      cfg.Parallelism,
		MaxRowByRowSize:                  cfg.MaxRowByRowSize,
		DBRoundTripBatchSize:             cfg.DBRoundTripBatchSize,
		DBRoundTripTagBatchSize:          cfg.DBRoundTripTagBatchSize,
		PreferParametersOnMultiRowInsert: cfg.PreferParametersOnMultiRowInsert,
	}
}

func readConfigFrom(cfg *config.Config) journal.ReadConfig {
	return journal.ReadConfig{
		MaxBufferSize:   cfg.MaxBufferSize,
		RefreshInterval: cfg.RefreshInterval,
		SafetyWindow:    cfg.SafetyWindow,
	}
}
