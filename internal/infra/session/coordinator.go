// Package session coordinates the per-subtask request/accept/reject/
// verify state machine between this node and its peers.
//
// Concurrency model: the Coordinator's lock is the single serialization
// point for all shared marketplace state. Network I/O (dialing peers,
// sending protocol messages) runs on its own goroutines and re-enters
// the lock through completion methods — callers never block on a dial.
// Operations on the same subtask id are processed in arrival order;
// operations across different subtask ids have no ordering guarantee.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gridmesh-network/gridmesh/internal/domain"
	"github.com/gridmesh-network/gridmesh/internal/infra/delivery"
	"github.com/gridmesh-network/gridmesh/internal/infra/metrics"
	"github.com/gridmesh-network/gridmesh/internal/infra/registry"
	"github.com/gridmesh-network/gridmesh/internal/infra/trust"
)

// Config describes the local node to its peers.
type Config struct {
	NodeID               string
	ListenAddress        string
	ListenPort           int
	EstimatedPerformance float64
	MaxResourceSize      int64
	MaxMemorySize        int64
	NumCores             int

	// StateRetention bounds how long terminal subtask states and
	// consumed verification markers are kept before the sync tick prunes
	// them. Zero means one hour.
	StateRetention time.Duration
}

// Coordinator drives subtasks from offer to paid, verified result.
type Coordinator struct {
	mu       sync.Mutex
	config   Config
	registry *registry.Registry
	trust    *trust.Ledger
	results  *delivery.Queue
	dialer   domain.Dialer
	payments domain.PaymentService
	sched    domain.ComputeScheduler

	// states tracks per-subtask lifecycle; terminal states gate the
	// accept/reject exclusivity invariant. finished records when a
	// subtask went terminal so the sync tick can prune old entries.
	states   map[string]domain.SubtaskState
	finished map[string]time.Time

	// pending maps subtask id → task id for results sent out for remote
	// verification. Each entry is consumed exactly once.
	pending map[string]string

	// resolved remembers consumed verifications so a second outcome for
	// the same task fails loudly instead of silently re-adjusting trust.
	// Pruned after StateRetention, past which a late duplicate degrades
	// to the never-awaited no-op.
	resolved map[string]time.Time

	messages *messageLog
}

// NewCoordinator wires the coordinator over its collaborators.
func NewCoordinator(cfg Config, reg *registry.Registry, ledger *trust.Ledger,
	results *delivery.Queue, dialer domain.Dialer, payments domain.PaymentService,
	sched domain.ComputeScheduler) *Coordinator {

	if cfg.StateRetention <= 0 {
		cfg.StateRetention = time.Hour
	}
	return &Coordinator{
		config:   cfg,
		registry: reg,
		trust:    ledger,
		results:  results,
		dialer:   dialer,
		payments: payments,
		sched:    sched,
		states:   make(map[string]domain.SubtaskState),
		finished: make(map[string]time.Time),
		pending:  make(map[string]string),
		resolved: make(map[string]time.Time),
		messages: newMessageLog(5),
	}
}

// Sync runs one coordination tick: header expiry first, then result
// flushing, then state pruning. Expiry must run first so a just-expired
// owner is not retried this tick.
func (c *Coordinator) Sync(ctx context.Context, now time.Time) {
	c.registry.Tick(now)
	c.FlushResults(ctx, now)
	c.pruneStates(now)
}

// pruneStates drops terminal subtask states and consumed verification
// markers older than the retention window so long-running nodes do not
// accumulate them without bound.
func (c *Coordinator) pruneStates(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub, at := range c.finished {
		if now.Sub(at) > c.config.StateRetention {
			delete(c.states, sub)
			delete(c.finished, sub)
		}
	}
	for task, at := range c.resolved {
		if now.Sub(at) > c.config.StateRetention {
			delete(c.resolved, task)
		}
	}
}

// ─── Requesting Work ────────────────────────────────────────────────────────

// RequestRandomTask picks a random supported task and requests a
// subtask from its owner. Returns the chosen task id, or false when no
// supported task is known.
func (c *Coordinator) RequestRandomTask(ctx context.Context) (string, bool) {
	taskID, ok := c.registry.PickRandomSupported()
	if !ok {
		return "", false
	}
	if err := c.RequestTask(ctx, taskID); err != nil {
		return "", false
	}
	return taskID, true
}

// RequestTask opens an outbound session to the owner of taskID and asks
// for a subtask. The outstanding-request count is bumped up front; a
// connection failure rolls it back, signals the local scheduler, and
// evicts the header — a dead owner's advertisement is discarded
// outright rather than retried, because keeping it advertised wastes
// other peers' attempts too.
func (c *Coordinator) RequestTask(ctx context.Context, taskID string) error {
	header, ok := c.registry.Header(taskID)
	if !ok {
		return domain.ErrUnknownTask
	}

	c.registry.IncOutstanding(header)
	go c.connectAndRequestTask(ctx, header)
	return nil
}

func (c *Coordinator) connectAndRequestTask(ctx context.Context, header domain.TaskHeader) {
	sess, err := c.dialer.Dial(ctx, header.OwnerAddress, header.OwnerPort)
	if err == nil {
		defer sess.Close()
		err = sess.SendTaskRequest(domain.TaskRequest{
			NodeID:               c.config.NodeID,
			TaskID:               header.TaskID,
			EstimatedPerformance: c.config.EstimatedPerformance,
			MaxResourceSize:      c.config.MaxResourceSize,
			MaxMemorySize:        c.config.MaxMemorySize,
			NumCores:             c.config.NumCores,
		})
	}
	if err != nil {
		log.Printf("[session] cannot connect to task %s owner: %v", header.TaskID, err)
		log.Printf("[session] removing task %s from task list", header.TaskID)
		metrics.SessionFailures.WithLabelValues("task_request").Inc()
		c.registry.DecOutstanding(header.TaskID)
		c.sched.TaskRequestRejected(header.TaskID, "connection failed")
		c.registry.Remove(header.TaskID)
		return
	}
	c.messages.add("task_request", header.OwnerID, header.OwnerAddress, header.OwnerPort, header.TaskID)
}

// RequestResource asks a peer for resource files a granted subtask
// still needs. A connection failure signals the executor and evicts the
// task header by the same fail-fast rule as RequestTask.
func (c *Coordinator) RequestResource(ctx context.Context, subtaskID string, resource domain.ResourceDescriptor, peer domain.Peer) {
	go func() {
		sess, err := c.dialer.Dial(ctx, peer.Address, peer.Port)
		if err == nil {
			defer sess.Close()
			err = sess.SendResourceRequest(subtaskID, resource)
		}
		if err != nil {
			log.Printf("[session] cannot connect for resources of subtask %s: %v", subtaskID, err)
			metrics.SessionFailures.WithLabelValues("resource_request").Inc()
			c.sched.ResourceRequestRejected(subtaskID, "connection failed")
			c.registry.Remove(resource.TaskID)
			return
		}
		c.messages.add("resource_request", peer.NodeID, peer.Address, peer.Port, subtaskID)
	}()
}

// OnResourceRequestResult is invoked by the protocol layer when the
// peer answers a resource request.
func (c *Coordinator) OnResourceRequestResult(subtaskID string, ok bool, reason string) {
	c.mu.Lock()
	if ok {
		c.states[subtaskID] = domain.SubtaskResourceGranted
	} else {
		c.states[subtaskID] = domain.SubtaskRejected
		c.finished[subtaskID] = time.Now()
	}
	c.mu.Unlock()

	if !ok {
		log.Printf("[session] resource request for subtask %s rejected: %s", subtaskID, reason)
		c.sched.ResourceRequestRejected(subtaskID, reason)
	}
}

// ─── Result Delivery ────────────────────────────────────────────────────────

// SendResult queues a locally computed result for delivery to the task
// owner. A second result for the same subtask id fails with
// domain.ErrDuplicateResult.
func (c *Coordinator) SendResult(subtaskID, taskID string, payload []byte, resultType string, owner domain.Peer) error {
	err := c.results.Enqueue(delivery.WaitingResult{
		SubtaskID:    subtaskID,
		TaskID:       taskID,
		Payload:      payload,
		ResultType:   resultType,
		OwnerAddress: owner.Address,
		OwnerPort:    owner.Port,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.states[subtaskID] = domain.SubtaskComputing
	c.mu.Unlock()
	return nil
}

// FlushResults attempts delivery for every retryable queued result.
func (c *Coordinator) FlushResults(ctx context.Context, now time.Time) {
	c.results.Flush(now, func(wr delivery.WaitingResult) {
		go c.deliverResult(ctx, wr)
	})
}

func (c *Coordinator) deliverResult(ctx context.Context, wr delivery.WaitingResult) {
	sess, err := c.dialer.Dial(ctx, wr.OwnerAddress, wr.OwnerPort)
	if err == nil {
		defer sess.Close()
		err = sess.SendReportComputedTask(domain.ReportedResult{
			SubtaskID:   wr.SubtaskID,
			TaskID:      wr.TaskID,
			ResultType:  wr.ResultType,
			Payload:     wr.Payload,
			NodeAddress: c.config.ListenAddress,
			NodePort:    c.config.ListenPort,
		})
	}
	if err != nil {
		log.Printf("[session] cannot deliver result for subtask %s: %v", wr.SubtaskID, err)
		metrics.SessionFailures.WithLabelValues("result_delivery").Inc()
		c.results.Fail(wr.SubtaskID, time.Now())
		return
	}

	if ackErr := c.results.Acknowledge(wr.SubtaskID); ackErr != nil {
		// Entry vanished mid-flight — protocol desynchronization.
		log.Printf("[session] acknowledge %s: %v", wr.SubtaskID, ackErr)
		return
	}

	c.mu.Lock()
	c.states[wr.SubtaskID] = domain.SubtaskResultSubmitted
	c.pending[wr.SubtaskID] = wr.TaskID
	c.mu.Unlock()
	c.messages.add("result_delivered", "", wr.OwnerAddress, wr.OwnerPort, wr.SubtaskID)
}

// ─── Requester Side: Verification Outcome ───────────────────────────────────

// Accept records that a computed result passed requester-side
// verification: the computing peer is paid and its computing trust
// increases. Accept and Reject are mutually exclusive terminal
// transitions per subtask — the second call fails with
// domain.ErrAlreadyResolved.
//
// An invalid reward logs a warning and skips payment; the trust
// adjustment still proceeds, since payment and trust are decoupled.
func (c *Coordinator) Accept(ctx context.Context, subtaskID, peerID, reward string, peer domain.Peer) error {
	if err := c.markTerminal(subtaskID, domain.SubtaskAccepted); err != nil {
		return err
	}

	amount, payErr := parseReward(reward)
	if payErr != nil {
		log.Printf("[session] wrong reward amount %q for subtask %s", reward, subtaskID)
	} else {
		log.Printf("[session] paying %d for subtask %s", amount, subtaskID)
		if err := c.payments.Pay(subtaskID, amount); err != nil {
			log.Printf("[session] payment for subtask %s failed: %v", subtaskID, err)
		}
		go c.notifyReward(ctx, subtaskID, amount, peer)
	}

	if err := c.trust.IncreaseComputing(peerID, subtaskID); err != nil {
		log.Printf("[session] trust increase for %s failed: %v", peerID, err)
	}
	return payErr
}

// Reject records that a computed result failed requester-side
// verification: the computing peer is notified and its computing trust
// decreases. Mutually exclusive with Accept per subtask.
func (c *Coordinator) Reject(ctx context.Context, subtaskID, peerID, reason string, peer domain.Peer) error {
	if err := c.markTerminal(subtaskID, domain.SubtaskRejected); err != nil {
		return err
	}

	log.Printf("[session] subtask %s result rejected: %s", subtaskID, reason)
	if err := c.trust.DecreaseComputing(peerID, subtaskID); err != nil {
		log.Printf("[session] trust decrease for %s failed: %v", peerID, err)
	}
	go c.notifyResultRejected(ctx, subtaskID, peer)
	return nil
}

// markTerminal transitions a subtask to a terminal state, enforcing
// that accept/reject happens at most once per subtask.
func (c *Coordinator) markTerminal(subtaskID string, state domain.SubtaskState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[subtaskID].IsTerminal() {
		return domain.ErrAlreadyResolved
	}
	c.states[subtaskID] = state
	c.finished[subtaskID] = time.Now()
	return nil
}

// notifyReward tells the computing peer its reward over a dedicated
// session. Failure here only logs — the ledger entry already stands.
func (c *Coordinator) notifyReward(ctx context.Context, subtaskID string, amount int64, peer domain.Peer) {
	sess, err := c.dialer.Dial(ctx, peer.Address, peer.Port)
	if err == nil {
		defer sess.Close()
		err = sess.SendReward(subtaskID, amount)
	}
	if err != nil {
		log.Printf("[session] cannot connect to pay for subtask %s: %v", subtaskID, err)
		metrics.SessionFailures.WithLabelValues("reward").Inc()
		return
	}
	c.messages.add("reward_sent", peer.NodeID, peer.Address, peer.Port, subtaskID)
}

// notifyResultRejected delivers the rejection to the computing peer.
// Failure only logs.
func (c *Coordinator) notifyResultRejected(ctx context.Context, subtaskID string, peer domain.Peer) {
	sess, err := c.dialer.Dial(ctx, peer.Address, peer.Port)
	if err == nil {
		defer sess.Close()
		err = sess.SendResultRejected(subtaskID)
	}
	if err != nil {
		log.Printf("[session] cannot deliver rejection for subtask %s: %v", subtaskID, err)
		metrics.SessionFailures.WithLabelValues("result_rejected").Inc()
		return
	}
	c.messages.add("result_rejected", peer.NodeID, peer.Address, peer.Port, subtaskID)
}

// ─── Computing Side: Verification Outcome ───────────────────────────────────

// OnVerificationResult is invoked by the protocol layer when the remote
// requester reports an outcome for a task this node computed for.
func (c *Coordinator) OnVerificationResult(taskID string, accepted bool, rewardOrReason string) error {
	if accepted {
		return c.VerificationAccepted(taskID, rewardOrReason)
	}
	return c.VerificationRejected(taskID, rewardOrReason)
}

// VerificationAccepted consumes the pending verification for taskID:
// the awarded reward is collected and the requester's trust increases.
// Consuming the same verification twice fails with
// domain.ErrAlreadyResolved.
func (c *Coordinator) VerificationAccepted(taskID, reward string) error {
	subtaskID, err := c.consumePending(taskID)
	if err != nil || subtaskID == "" {
		return err
	}

	owner, active := c.registry.DecOutstanding(taskID)

	amount, parseErr := parseReward(reward)
	if parseErr != nil {
		log.Printf("[session] wrong reward amount %q for subtask %s", reward, subtaskID)
	} else {
		log.Printf("[session] getting %d for subtask %s", amount, subtaskID)
		if err := c.payments.Collect(subtaskID, amount); err != nil {
			log.Printf("[session] collecting reward for subtask %s failed: %v", subtaskID, err)
		}
	}

	if active {
		if err := c.trust.IncreaseRequesting(owner); err != nil {
			log.Printf("[session] requester trust increase for %s failed: %v", owner, err)
		}
	}
	return nil
}

// VerificationRejected consumes the pending verification for taskID:
// the requester's trust decreases and its task header is evicted — a
// requester that rejects our work gets no further attempts from this
// node until it re-advertises past the cool-down.
func (c *Coordinator) VerificationRejected(taskID, reason string) error {
	subtaskID, err := c.consumePending(taskID)
	if err != nil || subtaskID == "" {
		return err
	}

	log.Printf("[session] subtask %s result rejected by requester: %s", subtaskID, reason)
	owner, active := c.registry.DecOutstanding(taskID)
	if active {
		if err := c.trust.DecreaseRequesting(owner); err != nil {
			log.Printf("[session] requester trust decrease for %s failed: %v", owner, err)
		}
	}
	c.registry.Remove(taskID)
	return nil
}

// consumePending removes and returns the subtask awaiting verification
// for taskID. A task whose verification was already consumed fails with
// domain.ErrAlreadyResolved; a task never awaited is a no-op (the
// header was removed mid-flight and the outcome is moot).
func (c *Coordinator) consumePending(taskID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var subtasks []string
	for sub, task := range c.pending {
		if task == taskID {
			subtasks = append(subtasks, sub)
		}
	}
	if len(subtasks) == 0 {
		if _, done := c.resolved[taskID]; done {
			return "", domain.ErrAlreadyResolved
		}
		log.Printf("[session] wasn't waiting for verification result for %s", taskID)
		return "", nil
	}

	sort.Strings(subtasks)
	sub := subtasks[0]
	delete(c.pending, sub)
	if len(subtasks) == 1 {
		c.resolved[taskID] = time.Now()
	}
	return sub, nil
}

// ─── Protocol Layer Surface ─────────────────────────────────────────────────

// OnTaskHeaderReceived ingests an advertised header from the network.
// Validation failures are logged and swallowed — never raised back to
// the protocol layer.
func (c *Coordinator) OnTaskHeaderReceived(h domain.TaskHeader) {
	if _, err := c.registry.Add(h); err != nil {
		if errors.Is(err, domain.ErrTaskRemoved) {
			log.Printf("[session] ignoring re-advertised task %s still in cool-down", h.TaskID)
			return
		}
		log.Printf("[session] wrong task header received: %v", err)
	}
}

// ListKnownTasks returns a read-only snapshot of known headers.
func (c *Coordinator) ListKnownTasks() []domain.TaskHeader {
	return c.registry.Snapshot()
}

// SubtaskState returns the tracked lifecycle state of a subtask.
func (c *Coordinator) SubtaskState(subtaskID string) (domain.SubtaskState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[subtaskID]
	return s, ok
}

// LastMessages returns the recent protocol interactions, newest last.
func (c *Coordinator) LastMessages() []Message {
	return c.messages.snapshot()
}

// parseReward parses a wire reward value into credits.
func parseReward(reward string) (int64, error) {
	amount, err := strconv.ParseInt(reward, 10, 64)
	if err != nil || amount < 0 {
		return 0, domain.ErrInvalidReward
	}
	return amount, nil
}
