package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	KeepRuns    int           // history entries to retain; 0 means default (1000)
}

// RunEntry records one job execution.
// Keep it compact and schema-stable.
type RunEntry struct {
	At       time.Time `json:"at"`
	Job      string    `json:"job"`
	OK       bool      `json:"ok"`
	ExitCode int       `json:"exit_code,omitempty"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

const defaultKeepRuns = 1000

func (c Config) keepRuns() int {
	if c.KeepRuns > 0 {
		return c.KeepRuns
	}
	return defaultKeepRuns
}
