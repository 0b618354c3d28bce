package session

import (
	"sync"
	"time"
)

// Message is one recorded protocol interaction, kept for diagnostics.
type Message struct {
	Kind    string    `json:"kind"`
	PeerID  string    `json:"peer_id,omitempty"`
	Address string    `json:"address"`
	Port    int       `json:"port"`
	Subject string    `json:"subject"`
	At      time.Time `json:"at"`
}

// messageLog is a fixed-capacity ring of the most recent interactions.
type messageLog struct {
	mu   sync.Mutex
	cap  int
	ring []Message
}

func newMessageLog(capacity int) *messageLog {
	return &messageLog{cap: capacity}
}

func (m *messageLog) add(kind, peerID, address string, port int, subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring = append(m.ring, Message{
		Kind:    kind,
		PeerID:  peerID,
		Address: address,
		Port:    port,
		Subject: subject,
		At:      time.Now(),
	})
	if len(m.ring) > m.cap {
		m.ring = m.ring[len(m.ring)-m.cap:]
	}
}

func (m *messageLog) snapshot() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.ring))
	copy(out, m.ring)
	return out
}
