// Package domain — peer and trust types.
package domain

import "time"

// Role distinguishes the two sides of a task exchange when adjusting
// trust: the peer that computed a subtask, and the peer that requested
// (and must pay for) it.
type Role string

const (
	RoleComputing  Role = "computing"
	RoleRequesting Role = "requesting"
)

// Peer is a remote node this node has interacted with.
type Peer struct {
	NodeID   string    `json:"node_id"`
	Address  string    `json:"address"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// TrustScore is a bounded per-peer, per-role reputation value.
type TrustScore struct {
	PeerID    string    `json:"peer_id"`
	Role      Role      `json:"role"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}
