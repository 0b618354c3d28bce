package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Header / registry errors
	ErrInvalidHeader = errors.New("malformed task header")
	ErrUnknownTask   = errors.New("task not known to this node")
	ErrTaskRemoved   = errors.New("task recently removed, still in cool-down")

	// Session / coordination errors
	ErrConnectionFailed = errors.New("could not open session to peer")
	ErrAlreadyResolved  = errors.New("verification outcome already consumed for this entry")

	// Result delivery errors
	ErrDuplicateResult = errors.New("result already queued for this subtask")
	ErrUnknownResult   = errors.New("no queued result for this subtask")

	// Payment errors
	ErrInvalidReward = errors.New("reward is not a valid amount")
)
