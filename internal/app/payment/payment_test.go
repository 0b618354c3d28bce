package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/sqlite"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(cfg, db)
}

// ─── Collect ────────────────────────────────────────────────────────────────

func TestService_Collect(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	if err := s.Collect("s1", 50); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	bal, err := s.Balance()
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if bal != 50 {
		t.Errorf("Balance() = %d, want 50", bal)
	}
}

func TestService_Collect_InvalidAmount(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	if err := s.Collect("s1", 0); !errors.Is(err, domain.ErrInvalidReward) {
		t.Errorf("Collect(0) error = %v, want ErrInvalidReward", err)
	}
	if err := s.Collect("s1", -10); !errors.Is(err, domain.ErrInvalidReward) {
		t.Errorf("Collect(-10) error = %v, want ErrInvalidReward", err)
	}
}

// ─── Pay ────────────────────────────────────────────────────────────────────

func TestService_Pay(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	if err := s.Pay("s1", 100); err != nil {
		t.Fatalf("Pay() error: %v", err)
	}

	bal, _ := s.Balance()
	if bal != -100 {
		t.Errorf("Balance() = %d, want -100 after paying out", bal)
	}
}

func TestService_Pay_PriceModifier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriceModifier = 1.5
	s := newTestService(t, cfg)

	if err := s.Pay("s1", 100); err != nil {
		t.Fatalf("Pay() error: %v", err)
	}

	bal, _ := s.Balance()
	if bal != -150 {
		t.Errorf("Balance() = %d, want -150 (reward scaled by modifier)", bal)
	}
}

func TestService_Pay_InvalidAmount(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	if err := s.Pay("s1", 0); !errors.Is(err, domain.ErrInvalidReward) {
		t.Errorf("Pay(0) error = %v, want ErrInvalidReward", err)
	}
}

// ─── Double-entry invariant ─────────────────────────────────────────────────

func TestService_DoubleEntry(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	s.Collect("s1", 50)
	s.Pay("s2", 30)

	// Every settlement books a matched debit/credit pair, so the three
	// accounts always sum to zero.
	var total int64
	for _, account := range []string{AccountNode, AccountPayouts, AccountEscrow} {
		bal, err := s.db.LedgerBalance(account)
		if err != nil {
			t.Fatalf("LedgerBalance(%s) error: %v", account, err)
		}
		total += bal
	}
	if total != 0 {
		t.Errorf("account balances sum to %d, want 0", total)
	}
}

func TestService_History(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	s.Collect("s1", 50)
	s.Collect("s2", 25)

	entries, err := s.History(10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	// Two credits on the node account.
	if len(entries) != 2 {
		t.Fatalf("History() len = %d, want 2", len(entries))
	}
	if entries[0].SubtaskID != "s2" {
		t.Errorf("newest entry subtask = %s, want s2", entries[0].SubtaskID)
	}
}

// ─── Deadline sweep ─────────────────────────────────────────────────────────

func TestService_SweepDeadlines_DropsExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SettleDeadline = time.Millisecond
	s := newTestService(t, cfg)

	s.park(domain.TxCollect, "s1", 50)
	if s.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", s.PendingCount())
	}

	s.SweepDeadlines(time.Now().Add(time.Second))
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after deadline", s.PendingCount())
	}
}

func TestService_SweepDeadlines_RetriesSettlement(t *testing.T) {
	s := newTestService(t, DefaultConfig())

	s.park(domain.TxCollect, "s1", 50)
	s.SweepDeadlines(time.Now())

	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after successful retry", s.PendingCount())
	}
	bal, _ := s.Balance()
	if bal != 50 {
		t.Errorf("Balance() = %d, want 50 booked by the sweep", bal)
	}
}
