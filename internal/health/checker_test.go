package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping() error { return f.err }

type fakeQueue struct {
	n int
}

func (f *fakeQueue) Len() int { return f.n }

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	return NewChecker(&fakePinger{}, t.TempDir(), &fakeQueue{}, 10)
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	c := newTestChecker(t)
	if c == nil {
		t.Fatal("NewChecker() returned nil")
	}
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	c := newTestChecker(t)
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}

	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := newTestChecker(t)

	// Before any run, there are no statuses — IsHealthy returns true (vacuously)
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_SQLiteCheckFails(t *testing.T) {
	c := NewChecker(&fakePinger{err: errors.New("db gone")}, t.TempDir(), &fakeQueue{}, 10)
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Error("IsHealthy() should be false when storage ping fails")
	}
	for _, s := range c.Statuses() {
		if s.Name == "sqlite" && s.Healthy {
			t.Error("sqlite check should fail")
		}
	}
}

func TestChecker_ResultBacklogCheck(t *testing.T) {
	c := NewChecker(&fakePinger{}, t.TempDir(), &fakeQueue{n: 50}, 10)
	c.runAll(context.Background())

	for _, s := range c.Statuses() {
		if s.Name == "result_backlog" {
			if s.Healthy {
				t.Error("result_backlog should fail when backlog exceeds limit")
			}
			if s.Error == "" {
				t.Error("error message should be populated")
			}
		}
	}
}

func TestChecker_DataDirCheck_NoDir(t *testing.T) {
	// Non-existent dir is fine — it gets created on first use
	dir := filepath.Join(t.TempDir(), "nonexistent")
	c := NewChecker(&fakePinger{}, dir, &fakeQueue{}, 10)
	c.runAll(context.Background())

	if !c.IsHealthy() {
		for _, s := range c.Statuses() {
			if !s.Healthy {
				t.Errorf("check %q failed: %s", s.Name, s.Error)
			}
		}
	}
}

func TestChecker_DataDirCheck_FileNotDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	os.WriteFile(dir, []byte("not a dir"), 0644)

	c := NewChecker(&fakePinger{}, dir, &fakeQueue{}, 10)
	c.runAll(context.Background())

	for _, s := range c.Statuses() {
		if s.Name == "data_dir" && s.Healthy {
			t.Error("data_dir should fail when path is a file")
		}
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := newTestChecker(t)
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()

	// Verify it's a copy, not the same slice
	if len(s1) > 0 {
		s1[0].Healthy = false
		if !s2[0].Healthy {
			t.Error("Statuses() should return a copy, not a reference")
		}
	}
}
