// Package registry keeps the node's view of task advertisements on the
// network.
//
// How the registry works:
//  1. Peers gossip task headers; Add ingests them with de-dup rules
//  2. Headers carry a TTL that burns down every synchronization tick
//  3. Headers this node can compute (capability match) are "supported"
//     and eligible for random request selection
//  4. Removed task ids sit in a cool-down window so a stale re-gossip
//     cannot resurrect a task that just died
//  5. ActiveTaskEntry tracks tasks with outstanding outbound requests,
//     reaped once the last verification outcome lands
package registry

import (
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/metrics"
)

// Config configures the header registry.
type Config struct {
	// CooldownWindow suppresses re-adding a removed task id. Independent
	// of header TTL.
	CooldownWindow time.Duration
}

// DefaultConfig returns production registry defaults.
func DefaultConfig() Config {
	return Config{
		CooldownWindow: 240 * time.Second,
	}
}

// ActiveTaskEntry is local bookkeeping of a task with outstanding
// outbound requests. It owns a copy of the header so the requester peer
// stays addressable even after the advertisement expires mid-flight.
type ActiveTaskEntry struct {
	TaskID      string            `json:"task_id"`
	Header      domain.TaskHeader `json:"header"`
	Outstanding int               `json:"outstanding"`
}

// Registry owns all TaskHeader and ActiveTaskEntry instances. Callers
// outside hold task ids only, never live references.
type Registry struct {
	mu        sync.Mutex
	config    Config
	filter    domain.CapabilityFilter
	headers   map[string]*domain.TaskHeader
	supported map[string]struct{}
	removed   map[string]time.Time
	local     map[string]struct{} // task ids owned by the local task manager
	active    map[string]*ActiveTaskEntry

	// Injectable for tests
	rand *rand.Rand
}

// New creates a registry with the given capability filter.
func New(cfg Config, filter domain.CapabilityFilter) *Registry {
	return &Registry{
		config:    cfg,
		filter:    filter,
		headers:   make(map[string]*domain.TaskHeader),
		supported: make(map[string]struct{}),
		removed:   make(map[string]time.Time),
		local:     make(map[string]struct{}),
		active:    make(map[string]*ActiveTaskEntry),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add ingests a task advertisement. It returns false without mutation
// when the task is already known or locally owned, and false with
// domain.ErrTaskRemoved inside the removal cool-down window. Malformed
// headers fail with a wrapped domain.ErrInvalidHeader; the protocol
// layer logs and drops them.
func (r *Registry) Add(h domain.TaskHeader) (bool, error) {
	if err := h.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.headers[h.TaskID]; known {
		return false, nil
	}
	if _, mine := r.local[h.TaskID]; mine {
		return false, nil
	}
	if _, cooling := r.removed[h.TaskID]; cooling {
		return false, domain.ErrTaskRemoved
	}

	log.Printf("[registry] adding task %s (owner %s, ttl %s)", h.TaskID, h.OwnerID, h.TTL)
	// The advertised timestamp is untrusted: a skewed or hostile peer
	// could inflate its TTL or expire it on arrival. TTL burn starts at
	// local receipt time.
	h.LastChecked = time.Now()
	cp := h
	r.headers[h.TaskID] = &cp
	if r.filter != nil && r.filter.Supports(h) {
		r.supported[h.TaskID] = struct{}{}
	}
	r.updateGaugesLocked()
	return true, nil
}

// Remove deletes a header and its supported mark, and records the
// removal timestamp for the cool-down window. The matching
// ActiveTaskEntry is reaped only when no requests are outstanding —
// otherwise verification completion reaps it later.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(taskID, time.Now())
}

func (r *Registry) removeLocked(taskID string, now time.Time) {
	delete(r.headers, taskID)
	delete(r.supported, taskID)
	r.removed[taskID] = now
	if entry, ok := r.active[taskID]; ok && entry.Outstanding <= 0 {
		delete(r.active, taskID)
	}
	r.updateGaugesLocked()
}

// Tick burns elapsed wall-clock off every header's TTL and removes the
// ones that expired. Cool-down records older than the window are purged
// in the same pass.
func (r *Registry) Tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.headers {
		h.TTL -= now.Sub(h.LastChecked)
		h.LastChecked = now
		if h.Expired() {
			log.Printf("[registry] task %s dies", id)
			metrics.TasksExpired.Inc()
			r.removeLocked(id, now)
		}
	}

	for id, removedAt := range r.removed {
		if now.Sub(removedAt) > r.config.CooldownWindow {
			delete(r.removed, id)
		}
	}
	r.updateGaugesLocked()
}

// PickRandomSupported returns a uniformly random supported task id.
func (r *Registry) PickRandomSupported() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.supported) == 0 {
		return "", false
	}
	ids := make([]string, 0, len(r.supported))
	for id := range r.supported {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic base ordering before the draw
	return ids[r.rand.Intn(len(ids))], true
}

// Header returns a copy of the header for taskID.
func (r *Registry) Header(taskID string) (domain.TaskHeader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.headers[taskID]
	if !ok {
		return domain.TaskHeader{}, false
	}
	return *h, true
}

// Known reports whether a header for taskID is currently present.
func (r *Registry) Known(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.headers[taskID]
	return ok
}

// AdoptLocal marks a task id as owned by the local task manager. Its
// header (if any) is dropped and future advertisements for it are
// ignored.
func (r *Registry) AdoptLocal(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.local[taskID] = struct{}{}
	delete(r.headers, taskID)
	delete(r.supported, taskID)
	r.updateGaugesLocked()
}

// Snapshot returns copies of all known headers for presentation layers.
func (r *Registry) Snapshot() []domain.TaskHeader {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.TaskHeader, 0, len(r.headers))
	for _, h := range r.headers {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// ─── Active Task Bookkeeping ────────────────────────────────────────────────

// IncOutstanding bumps the outstanding request count for taskID,
// creating the entry (with an owned header copy) on first use.
func (r *Registry) IncOutstanding(h domain.TaskHeader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.active[h.TaskID]
	if !ok {
		entry = &ActiveTaskEntry{TaskID: h.TaskID, Header: h}
		r.active[h.TaskID] = entry
	}
	entry.Outstanding++
}

// DecOutstanding decrements the outstanding count. When it reaches 0
// and the header is already gone from the registry (task expired
// mid-flight), the entry is deleted immediately — no orphans persist.
// Returns the requester peer id from the owned header copy, or false if
// no entry exists.
func (r *Registry) DecOutstanding(taskID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.active[taskID]
	if !ok {
		return "", false
	}
	owner := entry.Header.OwnerID
	entry.Outstanding--
	if entry.Outstanding <= 0 {
		if _, present := r.headers[taskID]; !present {
			delete(r.active, taskID)
		}
	}
	return owner, true
}

// ActiveOwner returns the requester peer id for a task with an active
// entry without touching the count.
func (r *Registry) ActiveOwner(taskID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.active[taskID]
	if !ok {
		return "", false
	}
	return entry.Header.OwnerID, true
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// Stats holds a registry snapshot for the API layer.
type Stats struct {
	KnownTasks     int `json:"known_tasks"`
	SupportedTasks int `json:"supported_tasks"`
	ActiveTasks    int `json:"active_tasks"`
	CoolingDown    int `json:"cooling_down"`
}

// Stats returns current registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		KnownTasks:     len(r.headers),
		SupportedTasks: len(r.supported),
		ActiveTasks:    len(r.active),
		CoolingDown:    len(r.removed),
	}
}

func (r *Registry) updateGaugesLocked() {
	metrics.KnownTasks.Set(float64(len(r.headers)))
	metrics.SupportedTasks.Set(float64(len(r.supported)))
}
