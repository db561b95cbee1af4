package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".zueira"

// Paths holds resolved filesystem paths for zueira data.
type Paths struct {
	Base   string // ~/.zueira
	Config string // ~/.zueira/config.yaml
	Env    string // ~/.zueira/.env
	Data   string // ~/.zueira/data
	Logs   string // ~/.zueira/logs
	DB     string // ~/.zueira/zueira.db
}

// ResolvePaths computes all standard paths from the home directory.
// If ZUEIRA_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("ZUEIRA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Env:    filepath.Join(base, ".env"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
		DB:     filepath.Join(base, "zueira.db"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// HistoryDir returns the configured history directory, or the default data
// directory when none is set.
func (p Paths) HistoryDir(cfg *Config) string {
	if cfg.History.Dir != "" {
		return cfg.History.Dir
	}
	return p.Data
}

// DBPath returns the configured SQLite path, or the default one.
func (p Paths) DBPath(cfg *Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return p.DB
}
