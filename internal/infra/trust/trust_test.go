package trust

import (
	"errors"
	"testing"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

// recordingSink captures applied deltas.
type recordingSink struct {
	peers  []string
	roles  []domain.Role
	deltas []float64
	err    error
}

func (s *recordingSink) Apply(peerID string, role domain.Role, delta float64) error {
	if s.err != nil {
		return s.err
	}
	s.peers = append(s.peers, peerID)
	s.roles = append(s.roles, role)
	s.deltas = append(s.deltas, delta)
	return nil
}

// fixedModifiers returns one modifier for every subtask.
type fixedModifiers struct {
	mod float64
}

func (f fixedModifiers) TrustModifier(string) float64 { return f.mod }

func newTestLedger(sink *recordingSink, mod float64) *Ledger {
	return NewLedger(DefaultConfig(), sink, fixedModifiers{mod: mod})
}

// ─── BoundedDelta ───────────────────────────────────────────────────────────

func TestLedger_BoundedDelta(t *testing.T) {
	l := newTestLedger(&recordingSink{}, 0)

	tests := []struct {
		raw  float64
		want float64
	}{
		{0.5, 0.5},
		{-3.0, 0.0},  // clamped to MinTrust
		{17.2, 1.0},  // clamped to MaxTrust
		{0.0, 0.0},
		{1.0, 1.0},
	}
	for _, tt := range tests {
		if got := l.BoundedDelta(tt.raw); got != tt.want {
			t.Errorf("BoundedDelta(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// ─── Computing trust (graded) ───────────────────────────────────────────────

func TestLedger_IncreaseComputing_UsesModifier(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLedger(sink, 0.3)

	if err := l.IncreaseComputing("peer-1", "sub-1"); err != nil {
		t.Fatalf("IncreaseComputing() error: %v", err)
	}

	if len(sink.deltas) != 1 {
		t.Fatalf("sink received %d deltas, want 1", len(sink.deltas))
	}
	if sink.roles[0] != domain.RoleComputing {
		t.Errorf("role = %s, want computing", sink.roles[0])
	}
	if sink.deltas[0] != 0.3 {
		t.Errorf("delta = %v, want 0.3 (graded by modifier)", sink.deltas[0])
	}
}

func TestLedger_DecreaseComputing_NegativeDelta(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLedger(sink, 0.3)

	if err := l.DecreaseComputing("peer-1", "sub-1"); err != nil {
		t.Fatalf("DecreaseComputing() error: %v", err)
	}
	if sink.deltas[0] != -0.3 {
		t.Errorf("delta = %v, want -0.3", sink.deltas[0])
	}
}

func TestLedger_Computing_ModifierClamped(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLedger(sink, 42.0) // absurd modifier

	l.IncreaseComputing("peer-1", "sub-1")
	if sink.deltas[0] != 1.0 {
		t.Errorf("delta = %v, want 1.0 (clamped to MaxTrust)", sink.deltas[0])
	}

	l.DecreaseComputing("peer-1", "sub-2")
	if sink.deltas[1] != -1.0 {
		t.Errorf("delta = %v, want -1.0 (clamped magnitude)", sink.deltas[1])
	}
}

// ─── Requesting trust (binary) ──────────────────────────────────────────────

func TestLedger_RequestingTrust_FullSwing(t *testing.T) {
	sink := &recordingSink{}
	l := newTestLedger(sink, 0.1) // modifier must NOT affect requesting trust

	l.IncreaseRequesting("peer-1")
	l.DecreaseRequesting("peer-2")

	if sink.roles[0] != domain.RoleRequesting || sink.roles[1] != domain.RoleRequesting {
		t.Fatalf("roles = %v, want requesting for both", sink.roles)
	}
	if sink.deltas[0] != 1.0 {
		t.Errorf("increase delta = %v, want full MaxTrust swing 1.0", sink.deltas[0])
	}
	if sink.deltas[1] != -1.0 {
		t.Errorf("decrease delta = %v, want -1.0", sink.deltas[1])
	}
}

// ─── Sink failures ──────────────────────────────────────────────────────────

func TestLedger_SinkErrorPropagates(t *testing.T) {
	sinkErr := errors.New("disk full")
	l := newTestLedger(&recordingSink{err: sinkErr}, 0.3)

	if err := l.IncreaseComputing("peer-1", "sub-1"); !errors.Is(err, sinkErr) {
		t.Errorf("IncreaseComputing() error = %v, want wrapped sink error", err)
	}
	if err := l.DecreaseRequesting("peer-1"); !errors.Is(err, sinkErr) {
		t.Errorf("DecreaseRequesting() error = %v, want wrapped sink error", err)
	}
}
