package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./runs
jobs:
  - name: sync
    schedule: 90s
    command: ["/usr/bin/rsync", "-a", "src/", "dst/"]
    timeout: 1m
  - name: nightly
    schedule: "30 2 * * *"
    command: ["/usr/local/bin/backup.sh"]
  - name: warmup
    schedule: 10s
    command: ["/bin/true"]
    once: true
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tickd.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging mis-parsed: %+v", cfg.Logging)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage mis-parsed: %+v", cfg.Storage)
	}
	if len(cfg.Jobs) != 3 {
		t.Fatalf("jobs = %d, want 3", len(cfg.Jobs))
	}
	if !cfg.Jobs[2].Once {
		t.Fatal("once flag lost")
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tickd.json",
		`{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"jobs":[]}`))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "tickd.yaml", "loging:\n  level: info\njobs: []\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidateJobs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "jobs:\n  - schedule: 10s\n    command: [\"/bin/true\"]\n"},
		{"duplicate name", "jobs:\n  - name: a\n    schedule: 10s\n    command: [\"/bin/true\"]\n  - name: a\n    schedule: 20s\n    command: [\"/bin/true\"]\n"},
		{"missing command", "jobs:\n  - name: a\n    schedule: 10s\n"},
		{"bad schedule", "jobs:\n  - name: a\n    schedule: nope\n    command: [\"/bin/true\"]\n"},
		{"bad timeout", "jobs:\n  - name: a\n    schedule: 10s\n    timeout: later\n    command: [\"/bin/true\"]\n"},
		{"bad env", "jobs:\n  - name: a\n    schedule: 10s\n    command: [\"/bin/true\"]\n    env: [\"NOEQUALS\"]\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(writeFile(t, "tickd.yaml", tt.yaml))
			if _, err := m.Load(); err == nil {
				t.Fatalf("config accepted: %s", tt.yaml)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got (%v, %v)", d, err)
	}
}

func TestDiffJobs(t *testing.T) {
	t.Parallel()
	oldJobs := []JobConfig{
		{Name: "keep", Schedule: "10s", Command: []string{"/bin/true"}},
		{Name: "edit", Schedule: "10s", Command: []string{"/bin/true"}},
		{Name: "gone", Schedule: "10s", Command: []string{"/bin/true"}},
	}
	newJobs := []JobConfig{
		{Name: "keep", Schedule: "10s", Command: []string{"/bin/true"}},
		{Name: "edit", Schedule: "20s", Command: []string{"/bin/true"}},
		{Name: "new", Schedule: "10s", Command: []string{"/bin/true"}},
	}

	added, removed := DiffJobs(oldJobs, newJobs)
	names := func(js []JobConfig) map[string]bool {
		m := map[string]bool{}
		for _, j := range js {
			m[j.Name] = true
		}
		return m
	}
	a, r := names(added), names(removed)
	if !a["edit"] || !a["new"] || a["keep"] || len(a) != 2 {
		t.Fatalf("added = %v", a)
	}
	if !r["edit"] || !r["gone"] || r["keep"] || len(r) != 2 {
		t.Fatalf("removed = %v", r)
	}
}
