package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RemotesConfig holds all named journal connection profiles and tracks
// which one is active.
type RemotesConfig struct {
	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// Remote is a named journal deployment profile: enough to reconstruct a
// config.Config without re-typing every flag on the command line.
type Remote struct {
	ConnectionString string `toml:"connection_string"`
	TagMode          string `toml:"tag_mode,omitempty"`
	NATSURL          string `toml:"nats_url,omitempty"`
	Description      string `toml:"description,omitempty"`
}

func remotesConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "journalctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "remotes.toml"), nil
}

// LoadRemotes reads the remotes.toml profile file, returning an empty
// (not nil) RemotesConfig when the file does not yet exist.
func LoadRemotes() (RemotesConfig, error) {
	path, err := remotesConfigPath()
	if err != nil {
		return RemotesConfig{}, err
	}
	var cfg RemotesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return RemotesConfig{Remotes: map[string]Remote{}}, nil
		}
		return RemotesConfig{}, err
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// SaveRemotes writes the remotes.toml profile file.
func SaveRemotes(cfg RemotesConfig) error {
	path, err := remotesConfigPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
