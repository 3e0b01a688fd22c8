package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/relaydb/sqljournal/internal/config"
)

func TestRemoteLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mustRun := func(fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatal(err)
		}
	}

	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "postgres://localhost/journal"}) })
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "postgres://localhost/journal"}) }) // upsert

	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"local"}) })

	cfg, _ := config.LoadRemotes()
	if cfg.Active != "local" {
		t.Fatalf("Active = %q, want %q", cfg.Active, "local")
	}

	var buf bytes.Buffer
	remoteListCmd.SetOut(&buf)
	mustRun(func() error { return remoteListCmd.RunE(remoteListCmd, nil) })
	if !strings.Contains(buf.String(), "* local") {
		t.Errorf("list missing active marker; got:\n%s", buf.String())
	}

	buf.Reset()
	remoteShowCmd.SetOut(&buf)
	mustRun(func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) })
	out := buf.String()
	if !strings.Contains(out, "local") || !strings.Contains(out, "postgres://localhost/journal") || !strings.Contains(out, "(active)") {
		t.Errorf("show missing expected content; got:\n%s", out)
	}

	buf.Reset()
	mustRun(func() error { return remoteShowCmd.RunE(remoteShowCmd, []string{"local"}) })
	if !strings.Contains(buf.String(), "postgres://localhost/journal") {
		t.Errorf("show by name missing connection string; got:\n%s", buf.String())
	}

	mustRun(func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"local"}) })
	cfg, _ = config.LoadRemotes()
	if _, ok := cfg.Remotes["local"]; ok {
		t.Error("remote 'local' should be gone")
	}
	if cfg.Active != "" {
		t.Errorf("Active should be cleared, got %q", cfg.Active)
	}
}

func TestRemoteErrorCases(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"use unknown", func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"ghost"}) }},
		{"remove unknown", func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"ghost"}) }},
		{"show no active", func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			if err := tc.fn(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
