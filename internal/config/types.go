package config

import (
	"fmt"
	"strings"

	"tickd/internal/schedule"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`

	// Storage controls the optional run-history persistence layer.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Watchdog controls systemd watchdog pinging. When enabled and the
	// process runs under a systemd unit with WatchdogSec set, the daemon
	// registers a periodic timer subscriber that sends WATCHDOG=1.
	Watchdog WatchdogConfig `json:"watchdog,omitempty"`

	// Jobs are the scheduled commands this daemon runs.
	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tickd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	KeepRuns    int    `json:"keep_runs,omitempty"`    // history rows to retain (default 1000)
}

type WatchdogConfig struct {
	Enabled bool `json:"enabled"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// JobConfig declares one scheduled command.
//
// Schedule accepts a Go duration ("90s"), an HH:MM interval ("02:30"),
// or a cron expression ("30 2 * * *", "@hourly"). All durations are Go
// duration strings.
type JobConfig struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Command  []string `json:"command"`
	Dir      string   `json:"dir,omitempty"`
	Env      []string `json:"env,omitempty"` // KEY=VALUE pairs appended to the process env

	// Timeout bounds one execution. Empty means no timeout.
	Timeout string `json:"timeout,omitempty"`

	// Once fires the job a single time after its first deadline, then
	// deregisters it.
	Once bool `json:"once,omitempty"`

	// Enabled is a pointer so an omitted field defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
}

func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

// Validate checks the parts that would otherwise fail late (at first
// firing) so a broken config is rejected before commit.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate job name %q", i, name)
		}
		seen[name] = true
		if len(j.Command) == 0 || strings.TrimSpace(j.Command[0]) == "" {
			return fmt.Errorf("job %q: command required", name)
		}
		if _, err := schedule.Parse(j.Schedule); err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		if _, err := ParseDurationField("jobs."+name+".timeout", j.Timeout); err != nil {
			return err
		}
		for _, kv := range j.Env {
			if !strings.Contains(kv, "=") {
				return fmt.Errorf("job %q: env entry %q is not KEY=VALUE", name, kv)
			}
		}
	}

	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"pprof.read_timeout", c.Pprof.ReadTimeout},
		{"pprof.write_timeout", c.Pprof.WriteTimeout},
		{"pprof.idle_timeout", c.Pprof.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
