package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	j, err := InitJournal(dbPath)
	if err != nil {
		t.Fatalf("InitJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestBeginAndFinish(t *testing.T) {
	j := newTestJournal(t)

	id, err := j.Begin("1JTG_B49_A/01", "abc123", "/out/1JTG_B49_A/01")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive ID, got %d", id)
	}

	rec, err := j.Get("1JTG_B49_A/01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("expected running, got %s", rec.Status)
	}
	if rec.OutputDir != "/out/1JTG_B49_A/01" {
		t.Errorf("unexpected output dir %q", rec.OutputDir)
	}

	if err := j.Finish(id, 0, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rec, _ = j.Get("1JTG_B49_A/01")
	if rec.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
}

func TestBeginRerunKeepsID(t *testing.T) {
	j := newTestJournal(t)

	id1, _ := j.Begin("job/01", "fp1", "/a")
	if err := j.Finish(id1, 1, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	id2, err := j.Begin("job/01", "fp2", "/b")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same ID on rerun, got %d and %d", id1, id2)
	}

	rec, _ := j.Get("job/01")
	if rec.Fingerprint != "fp2" || rec.OutputDir != "/b" {
		t.Errorf("rerun did not refresh record: %+v", rec)
	}
	if rec.Status != StatusRunning || rec.ExitCode != 0 || rec.ErrorMessage != "" {
		t.Errorf("rerun did not reset outcome: %+v", rec)
	}
}

func TestFinishFailures(t *testing.T) {
	j := newTestJournal(t)

	id1, _ := j.Begin("job/01", "fp", "/a")
	id2, _ := j.Begin("job/02", "fp", "/b")
	j.Finish(id1, 137, nil)
	j.Finish(id2, -1, errors.New("exec: not found"))

	rec, _ := j.Get("job/01")
	if rec.Status != StatusFailed || rec.ExitCode != 137 || rec.ErrorMessage != "exit code 137" {
		t.Errorf("unexpected record for exit failure: %+v", rec)
	}
	rec, _ = j.Get("job/02")
	if rec.Status != StatusFailed || rec.ErrorMessage != "exec: not found" {
		t.Errorf("unexpected record for run error: %+v", rec)
	}

	failed, err := j.Failed()
	if err != nil {
		t.Fatalf("Failed: %v", err)
	}
	if len(failed) != 2 || failed[0].Key != "job/01" || failed[1].Key != "job/02" {
		t.Errorf("unexpected failed list: %+v", failed)
	}
}

func TestIsCompleted(t *testing.T) {
	j := newTestJournal(t)

	id, _ := j.Begin("job/01", "fp1", "/a")

	done, err := j.IsCompleted("job/01", "fp1")
	if err != nil {
		t.Fatalf("IsCompleted: %v", err)
	}
	if done {
		t.Error("running job reported completed")
	}

	j.Finish(id, 0, nil)
	if done, _ := j.IsCompleted("job/01", "fp1"); !done {
		t.Error("expected completed")
	}
	if done, _ := j.IsCompleted("job/01", "fp2"); done {
		t.Error("different fingerprint should not count as completed")
	}
	if done, _ := j.IsCompleted("job/02", "fp1"); done {
		t.Error("unknown job should not count as completed")
	}
}

func TestGetNotFound(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResetFailed(t *testing.T) {
	j := newTestJournal(t)

	id1, _ := j.Begin("job/01", "fp", "/a")
	id2, _ := j.Begin("job/02", "fp", "/b")
	j.Begin("job/03", "fp", "/c") // left running
	j.Finish(id1, 0, nil)
	j.Finish(id2, 1, nil)

	n, err := j.ResetFailed()
	if err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reset, got %d", n)
	}

	stats, _ := j.Stats()
	if stats[StatusPending] != 2 || stats[StatusCompleted] != 1 {
		t.Errorf("unexpected stats after reset: %v", stats)
	}
}

func TestDropAll(t *testing.T) {
	j := newTestJournal(t)
	j.Begin("job/01", "fp", "/a")
	j.Begin("job/02", "fp", "/b")

	if err := j.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	stats, _ := j.Stats()
	if len(stats) != 0 {
		t.Errorf("expected empty stats, got %v", stats)
	}
}

func TestStatsEmpty(t *testing.T) {
	j := newTestJournal(t)
	stats, err := j.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("expected empty stats, got %v", stats)
	}
}

func TestInitJournalPathWithURIChars(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run?1#a")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "journal.db")

	j, err := InitJournal(dbPath)
	if err != nil {
		t.Fatalf("InitJournal: %v", err)
	}
	defer j.Close()
	if _, err := j.Begin("1JTG_B49_A/01", "abc123", "/out"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := j.Get("1JTG_B49_A/01"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("journal not created at %s: %v", dbPath, err)
	}
}
