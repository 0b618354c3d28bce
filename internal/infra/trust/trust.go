// Package trust applies bounded trust deltas for computing and
// requesting peers.
//
// Computing trust is graded: the delta comes from the task's trust
// modifier (derived from estimated task complexity), so big tasks swing
// trust more than trivial ones. Requesting trust is binary-weighted: a
// requester either paid fairly or did not, so the full swing is applied
// either way.
package trust

import (
	"fmt"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/metrics"
)

// Config bounds trust adjustments.
type Config struct {
	MinTrust float64
	MaxTrust float64
}

// DefaultConfig returns the standard [0.0, 1.0] trust bounds.
func DefaultConfig() Config {
	return Config{MinTrust: 0.0, MaxTrust: 1.0}
}

// Ledger forwards bounded, signed trust deltas to a reputation sink.
type Ledger struct {
	config    Config
	sink      domain.ReputationSink
	modifiers domain.TrustModifierSource
}

// NewLedger creates a trust ledger over the given sink and modifier
// source.
func NewLedger(cfg Config, sink domain.ReputationSink, modifiers domain.TrustModifierSource) *Ledger {
	return &Ledger{config: cfg, sink: sink, modifiers: modifiers}
}

// BoundedDelta clamps a raw trust-modifier value into
// [MinTrust, MaxTrust].
func (l *Ledger) BoundedDelta(raw float64) float64 {
	if raw < l.config.MinTrust {
		return l.config.MinTrust
	}
	if raw > l.config.MaxTrust {
		return l.config.MaxTrust
	}
	return raw
}

// IncreaseComputing rewards the peer that computed subtaskID.
func (l *Ledger) IncreaseComputing(peerID, subtaskID string) error {
	return l.applyComputing(peerID, subtaskID, +1)
}

// DecreaseComputing punishes the peer that computed subtaskID.
func (l *Ledger) DecreaseComputing(peerID, subtaskID string) error {
	return l.applyComputing(peerID, subtaskID, -1)
}

func (l *Ledger) applyComputing(peerID, subtaskID string, sign float64) error {
	delta := l.BoundedDelta(l.modifiers.TrustModifier(subtaskID))
	if err := l.sink.Apply(peerID, domain.RoleComputing, sign*delta); err != nil {
		return fmt.Errorf("apply computing trust for %s: %w", peerID, err)
	}
	metrics.TrustAdjustments.WithLabelValues(string(domain.RoleComputing), direction(sign)).Inc()
	return nil
}

// IncreaseRequesting rewards a requester that paid fairly. Full swing.
func (l *Ledger) IncreaseRequesting(peerID string) error {
	return l.applyRequesting(peerID, +1)
}

// DecreaseRequesting punishes a requester that rejected or stiffed a
// result. Full swing.
func (l *Ledger) DecreaseRequesting(peerID string) error {
	return l.applyRequesting(peerID, -1)
}

func (l *Ledger) applyRequesting(peerID string, sign float64) error {
	if err := l.sink.Apply(peerID, domain.RoleRequesting, sign*l.config.MaxTrust); err != nil {
		return fmt.Errorf("apply requesting trust for %s: %w", peerID, err)
	}
	metrics.TrustAdjustments.WithLabelValues(string(domain.RoleRequesting), direction(sign)).Inc()
	return nil
}

func direction(sign float64) string {
	if sign >= 0 {
		return "increase"
	}
	return "decrease"
}
