package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These define the boundaries to the layers the core does not own:
// transport, payments, reputation, and the local compute scheduler.
// Infrastructure implements them; the coordination layer depends on them.

// Session is a reliable bidirectional request/response channel to one
// peer. Connection establishment and wire framing live behind it.
type Session interface {
	// SendTaskRequest asks the task owner for a subtask to compute.
	SendTaskRequest(req TaskRequest) error

	// SendResourceRequest asks for resource files a granted subtask
	// still needs.
	SendResourceRequest(subtaskID string, resource ResourceDescriptor) error

	// SendReportComputedTask delivers a computed result to its owner.
	// A nil error means the owner acknowledged receipt.
	SendReportComputedTask(result ReportedResult) error

	// SendResultRejected tells the computing peer its result failed
	// verification.
	SendResultRejected(subtaskID string) error

	// SendReward tells the computing peer its reward amount.
	SendReward(subtaskID string, amount int64) error

	Close() error
}

// Dialer opens sessions to remote peers. Dial blocks for the network
// round trip, so callers run it off the coordination path and re-enter
// through the coordinator on completion.
type Dialer interface {
	Dial(ctx context.Context, address string, port int) (Session, error)
}

// CapabilityFilter decides whether this node can compute tasks for a
// given advertisement (environment match, version, resources).
type CapabilityFilter interface {
	Supports(h TaskHeader) bool
}

// ReputationSink receives signed trust deltas. Implementations persist
// the bounded per-peer, per-role score.
type ReputationSink interface {
	Apply(peerID string, role Role, delta float64) error
}

// PaymentService settles rewards. Payment and trust are decoupled
// concerns: a failed payment never blocks a trust adjustment.
type PaymentService interface {
	// Pay settles an accepted result (requester side).
	Pay(subtaskID string, amount int64) error

	// Collect books a reward received for a computed result.
	Collect(subtaskID string, amount int64) error
}

// ComputeScheduler is the local executor's feedback surface. The
// coordinator signals it when an outbound request cannot proceed.
type ComputeScheduler interface {
	TaskRequestRejected(taskID, reason string)
	ResourceRequestRejected(subtaskID, reason string)
}

// TrustModifierSource grades trust deltas by task size. Bigger tasks
// swing computing trust more, which resists reputation grinding on
// trivial work.
type TrustModifierSource interface {
	TrustModifier(subtaskID string) float64
}
