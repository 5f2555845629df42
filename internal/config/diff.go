package config

import (
	"encoding/json"
	"strings"

	logx "tickd/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like pprof tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		strings.TrimSpace(oldCfg.Pprof.Prefix) != strings.TrimSpace(newCfg.Pprof.Prefix) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		oldCfg.Pprof.Token != newCfg.Pprof.Token ||
		oldCfg.Pprof.ReadTimeout != newCfg.Pprof.ReadTimeout ||
		oldCfg.Pprof.WriteTimeout != newCfg.Pprof.WriteTimeout ||
		oldCfg.Pprof.IdleTimeout != newCfg.Pprof.IdleTimeout {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	if !storageEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}

	if oldCfg.Watchdog != newCfg.Watchdog {
		changed = append(changed, "watchdog")
	}

	if added, removed := DiffJobs(oldCfg.Jobs, newCfg.Jobs); len(added)+len(removed) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.registered", len(added)),
			logx.Int("jobs.deregistered", len(removed)),
		)
	}

	return changed, attrs
}

func storageEqual(a, b *StorageConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DiffJobs compares job sets by name AND content: a job whose definition
// changed appears in both lists (remove old, add new).
func DiffJobs(oldJobs, newJobs []JobConfig) (added, removed []JobConfig) {
	oldByName := map[string]JobConfig{}
	for _, j := range oldJobs {
		oldByName[j.Name] = j
	}
	newByName := map[string]JobConfig{}
	for _, j := range newJobs {
		newByName[j.Name] = j
	}

	for _, j := range newJobs {
		old, ok := oldByName[j.Name]
		if !ok || jobHash(old) != jobHash(j) {
			added = append(added, j)
		}
	}
	for _, j := range oldJobs {
		cur, ok := newByName[j.Name]
		if !ok || jobHash(cur) != jobHash(j) {
			removed = append(removed, j)
		}
	}
	return added, removed
}

func jobHash(j JobConfig) uint64 {
	b, err := json.Marshal(j)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
