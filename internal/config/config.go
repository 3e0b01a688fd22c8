// Package config loads journal configuration from JOURNAL_-prefixed
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/relaydb/sqljournal/internal/row"
)

// Config holds the connection settings, write pipeline tuning knobs, and
// read-side poll tuning for a journal deployment.
type Config struct {
	ConnectionString   string        // JOURNAL_CONNECTION_STRING (required)
	ProviderName       string        // JOURNAL_PROVIDER_NAME (default "postgres")
	Parallelism        int           // JOURNAL_PARALLELISM (default 4)
	TagMode            row.TagMode   // JOURNAL_TAG_MODE (default "csv")
	AutoInitialize     bool          // JOURNAL_AUTO_INITIALIZE (default false)
	UseCloneConnection bool          // JOURNAL_USE_CLONE_CONNECTION (default false)

	DeleteCompatibilityMode bool // JOURNAL_DELETE_COMPATIBILITY_MODE (default false)

	BufferSize                       int  // JOURNAL_BUFFER_SIZE (default 10000)
	BatchSize                        int  // JOURNAL_BATCH_SIZE (default 400)
	MaxRowByRowSize                  int  // JOURNAL_MAX_ROW_BY_ROW_SIZE (default 20)
	DBRoundTripBatchSize             int  // JOURNAL_DB_ROUND_TRIP_BATCH_SIZE (default 1000)
	DBRoundTripTagBatchSize          int  // JOURNAL_DB_ROUND_TRIP_TAG_BATCH_SIZE (default 1000)
	PreferParametersOnMultiRowInsert bool // JOURNAL_PREFER_PARAMETERS_ON_MULTI_ROW_INSERT (default true)

	MaxBufferSize   int           // JOURNAL_MAX_BUFFER_SIZE (default 500)
	RefreshInterval time.Duration // JOURNAL_REFRESH_INTERVAL (default 1s)
	SafetyWindow    int64         // JOURNAL_SAFETY_WINDOW (default 0)

	NATSURL string // JOURNAL_NATS_URL (optional, empty = pure polling)
}

// Load reads Config from the environment.
// JOURNAL_CONNECTION_STRING is the only required key.
func Load() (*Config, error) {
	c := &Config{
		ConnectionString:                 os.Getenv("JOURNAL_CONNECTION_STRING"),
		ProviderName:                     envOrDefault("JOURNAL_PROVIDER_NAME", "postgres"),
		TagMode:                          row.TagMode(envOrDefault("JOURNAL_TAG_MODE", string(row.TagModeCSV))),
		AutoInitialize:                   envBoolOrDefault("JOURNAL_AUTO_INITIALIZE", false),
		UseCloneConnection:               envBoolOrDefault("JOURNAL_USE_CLONE_CONNECTION", false),
		DeleteCompatibilityMode:          envBoolOrDefault("JOURNAL_DELETE_COMPATIBILITY_MODE", false),
		PreferParametersOnMultiRowInsert: envBoolOrDefault("JOURNAL_PREFER_PARAMETERS_ON_MULTI_ROW_INSERT", true),
		NATSURL:                          os.Getenv("JOURNAL_NATS_URL"),
	}
	if c.ConnectionString == "" {
		return nil, fmt.Errorf("JOURNAL_CONNECTION_STRING is required")
	}
	if !c.TagMode.Valid() {
		return nil, fmt.Errorf("JOURNAL_TAG_MODE: invalid value %q", c.TagMode)
	}

	var err error
	if c.Parallelism, err = envIntOrDefault("JOURNAL_PARALLELISM", 4); err != nil {
		return nil, err
	}
	if c.BufferSize, err = envIntOrDefault("JOURNAL_BUFFER_SIZE", 10_000); err != nil {
		return nil, err
	}
	if c.BatchSize, err = envIntOrDefault("JOURNAL_BATCH_SIZE", 400); err != nil {
		return nil, err
	}
	if c.MaxRowByRowSize, err = envIntOrDefault("JOURNAL_MAX_ROW_BY_ROW_SIZE", 20); err != nil {
		return nil, err
	}
	if c.DBRoundTripBatchSize, err = envIntOrDefault("JOURNAL_DB_ROUND_TRIP_BATCH_SIZE", 1_000); err != nil {
		return nil, err
	}
	if c.DBRoundTripTagBatchSize, err = envIntOrDefault("JOURNAL_DB_ROUND_TRIP_TAG_BATCH_SIZE", 1_000); err != nil {
		return nil, err
	}
	if c.MaxBufferSize, err = envIntOrDefault("JOURNAL_MAX_BUFFER_SIZE", 500); err != nil {
		return nil, err
	}
	safetyWindow, err := envIntOrDefault("JOURNAL_SAFETY_WINDOW", 0)
	if err != nil {
		return nil, err
	}
	c.SafetyWindow = int64(safetyWindow)

	refreshStr := envOrDefault("JOURNAL_REFRESH_INTERVAL", "1s")
	c.RefreshInterval, err = time.ParseDuration(refreshStr)
	if err != nil {
		return nil, fmt.Errorf("JOURNAL_REFRESH_INTERVAL: %w", err)
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "TRUE"
}

func envIntOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
