// Package payment implements the node's double-entry payment ledger.
// Every settlement creates matched DEBIT/CREDIT entries, so
// SUM(debits) == SUM(credits) is an invariant.
//
// Payments are deliberately decoupled from trust: a failed settlement
// is retried at the deadline sweep and never blocks a trust adjustment.
package payment

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/metrics"
	"github.com/gridmesh-network/gridmesh/internal/infra/sqlite"
)

// Accounts of the node-local ledger.
const (
	AccountNode    = "node_balance"
	AccountPayouts = "peer_payouts"
	AccountEscrow  = "requester_escrow"
)

// Config configures payment settlement.
type Config struct {
	// PriceModifier scales the base reward when this node pays for an
	// accepted result. Derived from subtask complexity upstream.
	PriceModifier float64

	// SettleDeadline bounds how long a failed settlement is retried at
	// sweep before being dropped with a warning.
	SettleDeadline time.Duration
}

// DefaultConfig returns production payment defaults.
func DefaultConfig() Config {
	return Config{
		PriceModifier:  1.0,
		SettleDeadline: 10 * time.Minute,
	}
}

// pendingSettlement is a payment that could not be booked yet.
type pendingSettlement struct {
	tx        domain.TxType
	subtaskID string
	amount    int64
	deadline  time.Time
}

// Service settles rewards against the SQLite-backed ledger.
type Service struct {
	mu      sync.Mutex
	config  Config
	db      *sqlite.DB
	pending map[string]pendingSettlement // subtask id → unsettled payment
}

// NewService creates a payment service.
func NewService(cfg Config, db *sqlite.DB) *Service {
	return &Service{
		config:  cfg,
		db:      db,
		pending: make(map[string]pendingSettlement),
	}
}

// Balance returns the current node balance.
func (s *Service) Balance() (int64, error) {
	return s.db.LedgerBalance(AccountNode)
}

// Pay settles an accepted result on the requester side: the price
// (reward scaled by the price modifier) moves from the node balance to
// the peer payouts account.
func (s *Service) Pay(subtaskID string, amount int64) error {
	price := int64(float64(amount) * s.config.PriceModifier)
	if price <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidReward, amount)
	}

	if err := s.book(domain.TxPay, subtaskID, AccountNode, AccountPayouts, price); err != nil {
		s.park(domain.TxPay, subtaskID, price)
		return fmt.Errorf("pay for subtask %s: %w", subtaskID, err)
	}
	metrics.PaymentsSettled.WithLabelValues(string(domain.TxPay)).Inc()
	return nil
}

// Collect books a reward received for a computed result: the amount
// moves from requester escrow to the node balance.
func (s *Service) Collect(subtaskID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidReward, amount)
	}

	if err := s.book(domain.TxCollect, subtaskID, AccountEscrow, AccountNode, amount); err != nil {
		s.park(domain.TxCollect, subtaskID, amount)
		return fmt.Errorf("collect reward for subtask %s: %w", subtaskID, err)
	}
	metrics.PaymentsSettled.WithLabelValues(string(domain.TxCollect)).Inc()
	return nil
}

// book writes the matched DEBIT/CREDIT pair for one settlement.
func (s *Service) book(tx domain.TxType, subtaskID, from, to string, amount int64) error {
	now := time.Now()

	fromBal, err := s.db.LedgerBalance(from)
	if err != nil {
		return fmt.Errorf("get %s balance: %w", from, err)
	}
	toBal, err := s.db.LedgerBalance(to)
	if err != nil {
		return fmt.Errorf("get %s balance: %w", to, err)
	}

	_, err = s.db.InsertLedgerEntry(domain.LedgerEntry{
		Timestamp: now,
		Type:      tx,
		EntryType: domain.EntryDebit,
		Account:   from,
		Amount:    amount,
		SubtaskID: subtaskID,
		Balance:   fromBal - amount,
	})
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}

	_, err = s.db.InsertLedgerEntry(domain.LedgerEntry{
		Timestamp: now,
		Type:      tx,
		EntryType: domain.EntryCredit,
		Account:   to,
		Amount:    amount,
		SubtaskID: subtaskID,
		Balance:   toBal + amount,
	})
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}

	s.updateBalanceGauge()
	return nil
}

// park parks a failed settlement for the deadline sweep.
func (s *Service) park(tx domain.TxType, subtaskID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[subtaskID]; exists {
		return
	}
	s.pending[subtaskID] = pendingSettlement{
		tx:        tx,
		subtaskID: subtaskID,
		amount:    amount,
		deadline:  time.Now().Add(s.config.SettleDeadline),
	}
}

// SweepDeadlines retries parked settlements and drops the ones past
// their deadline. Called from the node's periodic sync.
func (s *Service) SweepDeadlines(now time.Time) {
	s.mu.Lock()
	due := make([]pendingSettlement, 0, len(s.pending))
	for _, p := range s.pending {
		due = append(due, p)
	}
	s.mu.Unlock()

	for _, p := range due {
		if now.After(p.deadline) {
			log.Printf("[payment] dropping unsettled %s for subtask %s after deadline", p.tx, p.subtaskID)
			s.forget(p.subtaskID)
			continue
		}

		var err error
		switch p.tx {
		case domain.TxPay:
			err = s.book(domain.TxPay, p.subtaskID, AccountNode, AccountPayouts, p.amount)
		case domain.TxCollect:
			err = s.book(domain.TxCollect, p.subtaskID, AccountEscrow, AccountNode, p.amount)
		}
		if err != nil {
			continue // stays pending until the deadline
		}
		metrics.PaymentsSettled.WithLabelValues(string(p.tx)).Inc()
		s.forget(p.subtaskID)
	}
}

func (s *Service) forget(subtaskID string) {
	s.mu.Lock()
	delete(s.pending, subtaskID)
	s.mu.Unlock()
}

// PendingCount returns the number of unsettled payments.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// History returns recent ledger entries for the node balance.
func (s *Service) History(limit int) ([]domain.LedgerEntry, error) {
	return s.db.LedgerEntries(AccountNode, limit)
}

func (s *Service) updateBalanceGauge() {
	if bal, err := s.db.LedgerBalance(AccountNode); err == nil {
		metrics.PaymentBalance.Set(float64(bal))
	}
}
