// Package compute is the local compute side of the marketplace: it
// decides which advertised tasks this node can run, tracks granted
// subtasks, and grades trust modifiers by subtask size.
package compute

import (
	"log"
	"sync"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

// Config describes the node's compute capabilities.
type Config struct {
	// Environments this node can execute, e.g. "default", "blender".
	Environments []string

	// Version of the local node software, compared against a task's
	// minimum version requirement.
	Version string

	// DefaultTrustModifier is used for subtasks with no registered
	// modifier. Scaled by accepted/rejected verdicts upstream.
	DefaultTrustModifier float64
}

// DefaultConfig returns production compute defaults.
func DefaultConfig() Config {
	return Config{
		Environments:         []string{"default"},
		Version:              "0.1.0",
		DefaultTrustModifier: 0.1,
	}
}

// Scheduler tracks locally granted subtasks and answers capability and
// trust-modifier queries for the coordination layer.
type Scheduler struct {
	mu        sync.Mutex
	config    Config
	envs      map[string]struct{}
	modifiers map[string]float64 // subtask id → trust modifier
	rejected  map[string]string  // task/subtask id → last rejection reason
}

// NewScheduler creates a compute scheduler.
func NewScheduler(cfg Config) *Scheduler {
	envs := make(map[string]struct{}, len(cfg.Environments))
	for _, e := range cfg.Environments {
		envs[e] = struct{}{}
	}
	return &Scheduler{
		config:    cfg,
		envs:      envs,
		modifiers: make(map[string]float64),
		rejected:  make(map[string]string),
	}
}

// Supports reports whether this node can compute subtasks of the
// advertised task: the environment must be installed and the local
// version must satisfy the task's minimum.
func (s *Scheduler) Supports(h domain.TaskHeader) bool {
	if _, ok := s.envs[h.Environment]; !ok {
		return false
	}
	if h.MinVersion == "" {
		return true
	}
	return compareVersions(s.config.Version, h.MinVersion) >= 0
}

// RegisterModifier records the trust modifier for a granted subtask,
// derived from its estimated complexity.
func (s *Scheduler) RegisterModifier(subtaskID string, modifier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modifiers[subtaskID] = modifier
}

// TrustModifier returns the registered modifier for a subtask, falling
// back to the configured default.
func (s *Scheduler) TrustModifier(subtaskID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modifiers[subtaskID]; ok {
		return m
	}
	return s.config.DefaultTrustModifier
}

// TaskRequestRejected records that an outbound task request could not
// be placed. The local executor picks another task on its next pass.
func (s *Scheduler) TaskRequestRejected(taskID, reason string) {
	s.mu.Lock()
	s.rejected[taskID] = reason
	s.mu.Unlock()
	log.Printf("[compute] task request for %s rejected: %s", taskID, reason)
}

// ResourceRequestRejected records that a resource request for a granted
// subtask failed.
func (s *Scheduler) ResourceRequestRejected(subtaskID, reason string) {
	s.mu.Lock()
	s.rejected[subtaskID] = reason
	s.mu.Unlock()
	log.Printf("[compute] resource request for %s rejected: %s", subtaskID, reason)
}

// LastRejection returns the recorded rejection reason for an id.
func (s *Scheduler) LastRejection(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.rejected[id]
	return reason, ok
}

// compareVersions compares dotted numeric versions: -1, 0, or +1.
// Non-numeric components compare as zero.
func compareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitVersion(v string) []int {
	var parts []int
	cur := 0
	seen := false
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			cur = cur*10 + int(r-'0')
			seen = true
		case r == '.':
			parts = append(parts, cur)
			cur = 0
			seen = false
		}
	}
	if seen {
		parts = append(parts, cur)
	}
	return parts
}
