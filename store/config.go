package store

import (
	"log/slog"
	"os"
	"time"
)

// Config holds configuration for opening a Store.
type Config struct {
	// Path is the database file location. The file is created on first
	// use and reused across process restarts.
	Path string

	// FileMode is the permission bits for a newly created database file.
	// Default: 0600
	FileMode os.FileMode

	// Timeout bounds the wait for the file lock when another process
	// holds the database open. Zero waits indefinitely.
	// Default: 1s
	Timeout time.Duration

	// NoSync skips fsync on commit. Faster, but a crash can lose the
	// most recent commits. Leave false outside of tests and bulk loads.
	NoSync bool

	// Logger receives debug-level operation traces.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for the given database path.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		FileMode: 0600,
		Timeout:  time.Second,
		Logger:   slog.Default(),
	}
}

// validate ensures config values are usable.
func (c *Config) validate() {
	if c.FileMode == 0 {
		c.FileMode = 0600
	}
	if c.Timeout < 0 {
		c.Timeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
