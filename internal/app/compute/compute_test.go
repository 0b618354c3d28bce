package compute

import (
	"testing"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

func header(env, minVersion string) domain.TaskHeader {
	return domain.TaskHeader{
		TaskID:       "t1",
		OwnerID:      "peer-1",
		OwnerAddress: "10.0.0.1",
		OwnerPort:    40102,
		Environment:  env,
		TTL:          time.Hour,
		MinVersion:   minVersion,
	}
}

func newTestScheduler() *Scheduler {
	return NewScheduler(Config{
		Environments:         []string{"default", "blender"},
		Version:              "0.4.2",
		DefaultTrustModifier: 0.1,
	})
}

// ─── Capability filter ──────────────────────────────────────────────────────

func TestScheduler_Supports_Environment(t *testing.T) {
	s := newTestScheduler()

	if !s.Supports(header("default", "")) {
		t.Error("Supports() = false for installed environment")
	}
	if !s.Supports(header("blender", "")) {
		t.Error("Supports() = false for installed environment")
	}
	if s.Supports(header("cuda", "")) {
		t.Error("Supports() = true for unknown environment")
	}
}

func TestScheduler_Supports_MinVersion(t *testing.T) {
	s := newTestScheduler()

	tests := []struct {
		min  string
		want bool
	}{
		{"", true},
		{"0.4.2", true},
		{"0.4.1", true},
		{"0.3.9", true},
		{"0.4.3", false},
		{"1.0.0", false},
		{"0.4", true},
		{"0.4.2.1", false},
	}
	for _, tt := range tests {
		if got := s.Supports(header("default", tt.min)); got != tt.want {
			t.Errorf("Supports(min %q) = %v, want %v", tt.min, got, tt.want)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.1.9", 1},
		{"0.9", "1.0", -1},
		{"1.0", "1.0.0", 0},
		{"1.0.1", "1.0", 1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// ─── Trust modifiers ────────────────────────────────────────────────────────

func TestScheduler_TrustModifier_Default(t *testing.T) {
	s := newTestScheduler()

	if got := s.TrustModifier("unseen"); got != 0.1 {
		t.Errorf("TrustModifier() = %v, want default 0.1", got)
	}
}

func TestScheduler_TrustModifier_Registered(t *testing.T) {
	s := newTestScheduler()

	s.RegisterModifier("s1", 0.6)
	if got := s.TrustModifier("s1"); got != 0.6 {
		t.Errorf("TrustModifier() = %v, want registered 0.6", got)
	}
	if got := s.TrustModifier("s2"); got != 0.1 {
		t.Errorf("TrustModifier() = %v, want default for other subtasks", got)
	}
}

// ─── Rejection feedback ─────────────────────────────────────────────────────

func TestScheduler_RejectionFeedback(t *testing.T) {
	s := newTestScheduler()

	s.TaskRequestRejected("t1", "connection failed")
	s.ResourceRequestRejected("s1", "no capacity")

	if reason, ok := s.LastRejection("t1"); !ok || reason != "connection failed" {
		t.Errorf("LastRejection(t1) = %q, %v, want connection failed, true", reason, ok)
	}
	if reason, ok := s.LastRejection("s1"); !ok || reason != "no capacity" {
		t.Errorf("LastRejection(s1) = %q, %v, want no capacity, true", reason, ok)
	}
	if _, ok := s.LastRejection("never"); ok {
		t.Error("LastRejection() = true for an id never rejected")
	}
}
