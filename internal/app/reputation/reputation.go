// Package reputation persists per-peer trust scores.
//
// The trust ledger computes bounded deltas; this package is the sink
// that folds them into durable per-peer, per-role scores so reputation
// survives a node restart.
package reputation

import (
	"fmt"
	"log"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/sqlite"
)

// Config bounds the stored scores.
type Config struct {
	// StartScore is the score assumed for a peer with no history.
	StartScore float64

	// MinScore and MaxScore clamp every stored score.
	MinScore float64
	MaxScore float64
}

// DefaultConfig returns production reputation defaults.
func DefaultConfig() Config {
	return Config{
		StartScore: 0.5,
		MinScore:   0.0,
		MaxScore:   1.0,
	}
}

// Store is a SQLite-backed reputation sink.
type Store struct {
	config Config
	db     *sqlite.DB
}

// NewStore creates a reputation store.
func NewStore(cfg Config, db *sqlite.DB) *Store {
	return &Store{config: cfg, db: db}
}

// Apply folds a trust delta into the peer's stored score.
func (s *Store) Apply(peerID string, role domain.Role, delta float64) error {
	next, err := s.db.ApplyTrustDelta(peerID, role, delta,
		s.config.StartScore, s.config.MinScore, s.config.MaxScore)
	if err != nil {
		return fmt.Errorf("persist %s trust for %s: %w", role, peerID, err)
	}
	log.Printf("[reputation] peer %s %s trust now %.3f (delta %+.3f)", peerID, role, next, delta)
	return nil
}

// Score returns the stored score for a peer/role, falling back to the
// start score for unknown peers.
func (s *Store) Score(peerID string, role domain.Role) (float64, error) {
	return s.db.TrustScore(peerID, role, s.config.StartScore)
}

// Scores returns all stored scores for a peer.
func (s *Store) Scores(peerID string) ([]domain.TrustScore, error) {
	return s.db.TrustScores(peerID)
}
