package grader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestErrorCodeMatching(t *testing.T) {
	base := Error{Code: ObjectDNE, Err: fmt.Errorf("no such run")}
	wrapped := fmt.Errorf("fetching record: %w", base)

	if !IsErrorCode(base, ObjectDNE) {
		t.Error("direct error did not match its own code")
	}
	if !IsErrorCode(wrapped, ObjectDNE) {
		t.Error("wrapped error did not match")
	}
	if IsErrorCode(wrapped, Busy) {
		t.Error("matched the wrong code")
	}
	if IsErrorCode(errors.New("plain"), ObjectDNE) {
		t.Error("plain error matched a grader code")
	}
	if !errors.Is(wrapped, base.Err) {
		t.Error("Unwrap chain broken")
	}
}

func TestStatusTerminality(t *testing.T) {
	terminal := []string{StatusComplete, StatusCompleteError,
		StatusCompleteExceptionRun, StatusCompleteExceptionEval}
	for _, s := range terminal {
		if !IsCompleteStatus(s) {
			t.Errorf("IsCompleteStatus(%q) = false", s)
		}
	}
	for _, s := range []string{StatusQueued, StatusRunning, ""} {
		if IsCompleteStatus(s) {
			t.Errorf("IsCompleteStatus(%q) = true", s)
		}
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	id := NewUUID()
	if id.IsNil() {
		t.Fatal("NewUUID returned the nil UUID")
	}
	back, err := ParseUUID(id.String())
	if err != nil {
		t.Fatalf("ParseUUID failed: %v", err)
	}
	if back.Compare(id) != 0 {
		t.Errorf("round trip changed the UUID: %s vs %s", back, id)
	}

	if _, err := ParseUUID("not-a-uuid"); !IsErrorCode(err, BadUUID) {
		t.Errorf("bad input = %v, want BadUUID", err)
	}
}

func TestTaskRunnerRunsEverything(t *testing.T) {
	tr := NewTaskRunner(context.Background(), 3)
	var ran int32
	for i := 0; i < 20; i++ {
		tr.Go(func() error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}
	if err := tr.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if ran != 20 {
		t.Errorf("ran %d tasks, want 20", ran)
	}
}

func TestTaskRunnerPropagatesError(t *testing.T) {
	tr := NewTaskRunner(context.Background(), 2)
	boom := errors.New("boom")
	tr.Go(func() error { return nil })
	tr.Go(func() error { return boom })
	if err := tr.Wait(); !errors.Is(err, boom) {
		t.Errorf("Wait = %v, want boom", err)
	}
}

func TestLoadConfigLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grader.json")
	body := `{"store": {"host": "redis.internal", "db": 7}, "worker_count": 9}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("GRADER_STORE_PASSWORD", "sekret")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Store.Host != "redis.internal" || cfg.Store.DB != 7 {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.WorkerCount != 9 {
		t.Errorf("worker_count = %d", cfg.WorkerCount)
	}
	if cfg.Store.Password != "sekret" {
		t.Errorf("env override lost: %q", cfg.Store.Password)
	}
	// Untouched fields keep their defaults.
	if cfg.QueueDepth != DefaultConfig().QueueDepth {
		t.Errorf("queue_depth = %d", cfg.QueueDepth)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); !IsErrorCode(err, FileIOError) {
		t.Errorf("missing file = %v, want FileIOError", err)
	}
}
