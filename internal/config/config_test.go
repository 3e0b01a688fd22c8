package config

import (
	"testing"
	"time"

	"github.com/relaydb/sqljournal/internal/row"
)

var journalEnvVars = []string{
	"JOURNAL_CONNECTION_STRING", "JOURNAL_PROVIDER_NAME", "JOURNAL_PARALLELISM",
	"JOURNAL_TAG_MODE", "JOURNAL_AUTO_INITIALIZE", "JOURNAL_USE_CLONE_CONNECTION",
	"JOURNAL_DELETE_COMPATIBILITY_MODE", "JOURNAL_BUFFER_SIZE", "JOURNAL_BATCH_SIZE",
	"JOURNAL_MAX_ROW_BY_ROW_SIZE", "JOURNAL_DB_ROUND_TRIP_BATCH_SIZE",
	"JOURNAL_DB_ROUND_TRIP_TAG_BATCH_SIZE", "JOURNAL_PREFER_PARAMETERS_ON_MULTI_ROW_INSERT",
	"JOURNAL_MAX_BUFFER_SIZE", "JOURNAL_REFRESH_INTERVAL", "JOURNAL_SAFETY_WINDOW",
	"JOURNAL_NATS_URL",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range journalEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingConnectionString(t *testing.T) {
	clearAllEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("JOURNAL_CONNECTION_STRING", "postgres://localhost/journal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProviderName != "postgres" {
		t.Errorf("ProviderName = %q, want postgres", cfg.ProviderName)
	}
	if cfg.TagMode != row.TagModeCSV {
		t.Errorf("TagMode = %q, want csv", cfg.TagMode)
	}
	if cfg.Parallelism != 4 {
		t.Errorf("Parallelism = %d, want 4", cfg.Parallelism)
	}
	if cfg.BufferSize != 10_000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
	if cfg.BatchSize != 400 {
		t.Errorf("BatchSize = %d, want 400", cfg.BatchSize)
	}
	if !cfg.PreferParametersOnMultiRowInsert {
		t.Error("PreferParametersOnMultiRowInsert = false, want true")
	}
	if cfg.RefreshInterval != time.Second {
		t.Errorf("RefreshInterval = %v, want 1s", cfg.RefreshInterval)
	}
	if cfg.SafetyWindow != 0 {
		t.Errorf("SafetyWindow = %d, want 0", cfg.SafetyWindow)
	}
	if cfg.AutoInitialize {
		t.Error("AutoInitialize = true, want false")
	}
	if cfg.NATSURL != "" {
		t.Errorf("NATSURL = %q, want empty", cfg.NATSURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("JOURNAL_CONNECTION_STRING", "postgres://db:5432/journal")
	t.Setenv("JOURNAL_TAG_MODE", "tag_table")
	t.Setenv("JOURNAL_PARALLELISM", "16")
	t.Setenv("JOURNAL_AUTO_INITIALIZE", "true")
	t.Setenv("JOURNAL_DELETE_COMPATIBILITY_MODE", "true")
	t.Setenv("JOURNAL_REFRESH_INTERVAL", "250ms")
	t.Setenv("JOURNAL_SAFETY_WINDOW", "3")
	t.Setenv("JOURNAL_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TagMode != row.TagModeTagTable {
		t.Errorf("TagMode = %q, want tag_table", cfg.TagMode)
	}
	if cfg.Parallelism != 16 {
		t.Errorf("Parallelism = %d, want 16", cfg.Parallelism)
	}
	if !cfg.AutoInitialize {
		t.Error("AutoInitialize = false, want true")
	}
	if !cfg.DeleteCompatibilityMode {
		t.Error("DeleteCompatibilityMode = false, want true")
	}
	if cfg.RefreshInterval != 250*time.Millisecond {
		t.Errorf("RefreshInterval = %v, want 250ms", cfg.RefreshInterval)
	}
	if cfg.SafetyWindow != 3 {
		t.Errorf("SafetyWindow = %d, want 3", cfg.SafetyWindow)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
}

func TestLoad_InvalidTagMode(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("JOURNAL_CONNECTION_STRING", "postgres://localhost/journal")
	t.Setenv("JOURNAL_TAG_MODE", "not-a-mode")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid JOURNAL_TAG_MODE")
	}
}

func TestLoad_InvalidRefreshInterval(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("JOURNAL_CONNECTION_STRING", "postgres://localhost/journal")
	t.Setenv("JOURNAL_REFRESH_INTERVAL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid JOURNAL_REFRESH_INTERVAL")
	}
}

func TestLoad_InvalidIntOption(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("JOURNAL_CONNECTION_STRING", "postgres://localhost/journal")
	t.Setenv("JOURNAL_PARALLELISM", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid JOURNAL_PARALLELISM")
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
