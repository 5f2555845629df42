package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logx "tickd/pkg/logx"
)

func openTestStore(t *testing.T, keep int) Store {
	t.Helper()
	st, err := Open(Config{
		Driver:   "file",
		Path:     filepath.Join(t.TempDir(), "tickd"),
		KeepRuns: keep,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = (%v, %v), want (nil, nil)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, 0)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	entries := []RunEntry{
		{At: now.Add(-2 * time.Minute), Job: "sync", OK: true, TookMS: 120},
		{At: now.Add(-time.Minute), Job: "backup", OK: false, ExitCode: 2, Error: "disk full", TookMS: 5400},
		{At: now, Job: "sync", OK: true, TookMS: 80},
	}
	for _, e := range entries {
		if err := st.AppendRun(ctx, e); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	// Newest first, all jobs.
	all, err := st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(all) != 3 || all[0].Job != "sync" || all[1].Job != "backup" {
		t.Fatalf("unexpected runs: %+v", all)
	}
	if !all[0].At.Equal(entries[2].At) {
		t.Fatalf("timestamps mangled: %v != %v", all[0].At, entries[2].At)
	}

	// Filter by job, honoring limit.
	syncs, err := st.RecentRuns(ctx, "sync", 1)
	if err != nil {
		t.Fatalf("RecentRuns(sync): %v", err)
	}
	if len(syncs) != 1 || syncs[0].TookMS != 80 {
		t.Fatalf("unexpected filtered runs: %+v", syncs)
	}

	// Failed run keeps error detail.
	fails, err := st.RecentRuns(ctx, "backup", 5)
	if err != nil {
		t.Fatalf("RecentRuns(backup): %v", err)
	}
	if len(fails) != 1 || fails[0].OK || fails[0].Error != "disk full" || fails[0].ExitCode != 2 {
		t.Fatalf("failure entry mangled: %+v", fails[0])
	}
}

func TestFileStoreCompaction(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, 10)
	ctx := context.Background()

	// Enough appends to cross the compaction threshold.
	for i := 0; i < 401; i++ {
		e := RunEntry{At: time.Now(), Job: fmt.Sprintf("job%d", i), OK: true}
		if err := st.AppendRun(ctx, e); err != nil {
			t.Fatalf("AppendRun %d: %v", i, err)
		}
	}

	all, err := st.RecentRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	// Compaction ran at append 200 and 400, keeping 10 plus the trailing append.
	if len(all) > 20 {
		t.Fatalf("history not compacted: %d entries", len(all))
	}
	if all[0].Job != "job400" {
		t.Fatalf("newest entry lost after compaction: %s", all[0].Job)
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, 0)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.AppendRun(context.Background(), RunEntry{Job: "x"}); err != ErrDisabled {
		t.Fatalf("AppendRun after Close = %v, want ErrDisabled", err)
	}
}
