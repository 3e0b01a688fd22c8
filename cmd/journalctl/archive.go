package main

import (
	"fmt"

	"github.com/spf13/cobra"

	archivepkg "github.com/relaydb/sqljournal/internal/archive"
	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/retention"
)

var (
	archiveBucket   string
	archiveRegion   string
	archiveEndpoint string
)

var archiveCmd = &cobra.Command{
	Use:   "archive <persistence-id> <max-seq>",
	Short: "Snapshot rows to S3 and run the delete protocol in one step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		persistenceID := args[0]
		maxSeq, err := parseInt64(args[1])
		if err != nil {
			return err
		}
		if archiveBucket == "" {
			return fmt.Errorf("--bucket is required")
		}

		ctx := cmd.Context()
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}

		db, err := dbconn.Open(ctx, dbconn.Config{
			ConnectionString: cfg.ConnectionString,
			ProviderName:     cfg.ProviderName,
			Parallelism:      cfg.Parallelism,
			TagMode:          cfg.TagMode,
			AutoInitialize:   cfg.AutoInitialize,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()

		dest, err := archivepkg.NewS3Destination(ctx, archiveBucket, archiveRegion, archiveEndpoint)
		if err != nil {
			return fmt.Errorf("configuring S3 destination: %w", err)
		}

		r := retention.New(db, cfg.DeleteCompatibilityMode, retention.WithArchiver(archivepkg.New(dest)))
		if err := r.Delete(ctx, persistenceID, maxSeq); err != nil {
			return err
		}

		printResult(map[string]any{
			"persistence_id":  persistenceID,
			"max_sequence_nr": maxSeq,
			"status":          "archived and deleted",
		})
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVar(&archiveBucket, "bucket", "", "S3 bucket to archive purged rows to (required)")
	archiveCmd.Flags().StringVar(&archiveRegion, "region", "us-east-1", "AWS region")
	archiveCmd.Flags().StringVar(&archiveEndpoint, "endpoint", "", "S3-compatible endpoint override (e.g. for MinIO)")
}
