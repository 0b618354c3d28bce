// Package delivery holds computed results awaiting delivery to their
// task owner.
//
// Delivery retries use a fixed backoff ceiling rather than exponential
// growth: owners are assumed either short-lived-reachable or
// permanently gone, and repeated fast retries against a dead owner are
// wasted work. An entry is removed only on confirmed delivery — a
// failed attempt resets it to retryable, never drops it.
package delivery

import (
	"sync"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/metrics"
)

// Config configures the delivery queue.
type Config struct {
	// MaxResendDelay is the fixed backoff applied after a failed
	// delivery attempt.
	MaxResendDelay time.Duration
}

// DefaultConfig returns production delivery defaults.
func DefaultConfig() Config {
	return Config{
		MaxResendDelay: 30 * time.Second,
	}
}

// WaitingResult is a computed result pending delivery, keyed by its
// subtask id. The queue owns these exclusively.
type WaitingResult struct {
	SubtaskID    string        `json:"subtask_id"`
	TaskID       string        `json:"task_id"`
	Payload      []byte        `json:"-"`
	ResultType   string        `json:"result_type"`
	OwnerAddress string        `json:"owner_address"`
	OwnerPort    int           `json:"owner_port"`
	LastAttempt  time.Time     `json:"last_attempt"`
	RetryDelay   time.Duration `json:"retry_delay"`
	InFlight     bool          `json:"in_flight"`
}

// SendFunc attempts to deliver one result. Implementations run the
// network exchange asynchronously and report the outcome back through
// Acknowledge or Fail.
type SendFunc func(result WaitingResult)

// Queue holds results until their owner confirms receipt.
type Queue struct {
	mu      sync.Mutex
	config  Config
	results map[string]*WaitingResult
}

// NewQueue creates a result delivery queue.
func NewQueue(cfg Config) *Queue {
	return &Queue{
		config:  cfg,
		results: make(map[string]*WaitingResult),
	}
}

// Enqueue inserts a computed result. A second result for the same
// subtask id is a logic error, not a silent merge.
func (q *Queue) Enqueue(result WaitingResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.results[result.SubtaskID]; exists {
		return domain.ErrDuplicateResult
	}

	result.InFlight = false
	result.RetryDelay = 0
	result.LastAttempt = time.Time{}
	cp := result
	q.results[result.SubtaskID] = &cp
	metrics.ResultsPending.Set(float64(len(q.results)))
	return nil
}

// Flush hands every retryable entry to send. An entry is retryable when
// it is not in flight and its backoff has elapsed. The entry is marked
// in flight before send runs, so repeated or concurrent Flush calls
// never double-send one subtask.
func (q *Queue) Flush(now time.Time, send SendFunc) {
	q.mu.Lock()
	var due []WaitingResult
	for _, wr := range q.results {
		if wr.InFlight {
			continue
		}
		if now.Sub(wr.LastAttempt) <= wr.RetryDelay {
			continue
		}
		wr.InFlight = true
		due = append(due, *wr)
	}
	q.mu.Unlock()

	for _, wr := range due {
		send(wr)
	}
}

// Acknowledge removes an entry on confirmed delivery. Acknowledging a
// subtask with no queued result indicates protocol desynchronization
// and fails loudly.
func (q *Queue) Acknowledge(subtaskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.results[subtaskID]; !ok {
		return domain.ErrUnknownResult
	}
	delete(q.results, subtaskID)
	metrics.ResultsPending.Set(float64(len(q.results)))
	metrics.ResultsDelivered.Inc()
	return nil
}

// Fail resets a failed attempt: the entry leaves flight, records the
// attempt time, and backs off to the configured ceiling.
func (q *Queue) Fail(subtaskID string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wr, ok := q.results[subtaskID]
	if !ok {
		return
	}
	wr.InFlight = false
	wr.LastAttempt = now
	wr.RetryDelay = q.config.MaxResendDelay
	metrics.ResultRetries.Inc()
}

// Pending returns copies of all queued results.
func (q *Queue) Pending() []WaitingResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]WaitingResult, 0, len(q.results))
	for _, wr := range q.results {
		out = append(out, *wr)
	}
	return out
}

// Len returns the number of queued results.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}
