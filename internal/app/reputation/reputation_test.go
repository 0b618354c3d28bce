package reputation

import (
	"testing"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(DefaultConfig(), db)
}

func TestStore_Score_UnknownPeer(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Score("stranger", domain.RoleComputing)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if got != 0.5 {
		t.Errorf("Score() = %v, want start score 0.5", got)
	}
}

func TestStore_Apply(t *testing.T) {
	s := newTestStore(t)

	if err := s.Apply("peer-1", domain.RoleComputing, 0.25); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	got, _ := s.Score("peer-1", domain.RoleComputing)
	if got != 0.75 {
		t.Errorf("Score() = %v, want 0.75", got)
	}
}

func TestStore_Apply_Clamps(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.Apply("peer-1", domain.RoleRequesting, 1.0)
	}
	got, _ := s.Score("peer-1", domain.RoleRequesting)
	if got != 1.0 {
		t.Errorf("Score() = %v, want clamped at 1.0", got)
	}

	for i := 0; i < 5; i++ {
		s.Apply("peer-1", domain.RoleRequesting, -1.0)
	}
	got, _ = s.Score("peer-1", domain.RoleRequesting)
	if got != 0.0 {
		t.Errorf("Score() = %v, want clamped at 0.0", got)
	}
}

func TestStore_RolesIndependent(t *testing.T) {
	s := newTestStore(t)

	s.Apply("peer-1", domain.RoleComputing, 0.25)
	s.Apply("peer-1", domain.RoleRequesting, -0.25)

	computing, _ := s.Score("peer-1", domain.RoleComputing)
	requesting, _ := s.Score("peer-1", domain.RoleRequesting)
	if computing != 0.75 {
		t.Errorf("computing score = %v, want 0.75", computing)
	}
	if requesting != 0.25 {
		t.Errorf("requesting score = %v, want 0.25", requesting)
	}
}

func TestStore_Scores(t *testing.T) {
	s := newTestStore(t)

	s.Apply("peer-1", domain.RoleComputing, 0.1)
	s.Apply("peer-1", domain.RoleRequesting, 0.1)
	s.Apply("peer-2", domain.RoleComputing, 0.1)

	scores, err := s.Scores("peer-1")
	if err != nil {
		t.Fatalf("Scores() error: %v", err)
	}
	if len(scores) != 2 {
		t.Errorf("Scores() len = %d, want 2 (peer-2 excluded)", len(scores))
	}
}
