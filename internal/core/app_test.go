package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppStartRunStop(t *testing.T) {
	dir := t.TempDir()
	runsPath := filepath.Join(dir, "runs")
	cfg := `
logging:
  level: error
  console: true
storage:
  driver: file
  path: ` + runsPath + `
jobs:
  - name: hello
    schedule: interval:40ms
    command: ["/bin/sh", "-c", "exit 0"]
    once: true
`
	path := writeConfig(t, dir, cfg)

	app, err := NewApp(path)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := app.store.RecentRuns(context.Background(), "hello", 10)
		if err == nil && len(runs) == 1 && runs[0].OK {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	runs, err := app.store.RecentRuns(context.Background(), "hello", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v (err %v), want one entry", runs, err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := app.Err(); err != nil {
		t.Fatalf("app err: %v", err)
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging:
  level: info
jobs:
  - name: broken
    schedule: "not a schedule"
    command: ["true"]
`)
	if _, err := NewApp(path); err == nil {
		t.Fatal("expected schedule parse error")
	} else if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name the job: %v", err)
	}
}
