// Package domain holds the pure types of the GridMesh marketplace core.
// A task flows through the network as: advertise → request → grant →
// compute → submit result → verify → pay + adjust trust.
package domain

import (
	"fmt"
	"time"
)

// TaskHeader is the network-visible advertisement of a computable task.
// It carries enough to decide whether to request work and where to
// connect — never the task payload itself.
type TaskHeader struct {
	TaskID         string        `json:"task_id"`
	OwnerID        string        `json:"owner_id"`
	OwnerAddress   string        `json:"owner_address"`
	OwnerPort      int           `json:"owner_port"`
	Environment    string        `json:"environment"`
	TTL            time.Duration `json:"ttl"`
	LastChecked    time.Time     `json:"last_checked"`
	SubtaskTimeout time.Duration `json:"subtask_timeout"`
	MinVersion     string        `json:"min_version,omitempty"`
}

// Validate checks the fields a header must carry to be usable.
func (h *TaskHeader) Validate() error {
	if h.TaskID == "" {
		return fmt.Errorf("%w: empty task_id", ErrInvalidHeader)
	}
	if h.OwnerID == "" {
		return fmt.Errorf("%w: task %s has no owner", ErrInvalidHeader, h.TaskID)
	}
	if h.OwnerAddress == "" || h.OwnerPort <= 0 || h.OwnerPort > 65535 {
		return fmt.Errorf("%w: task %s has unusable owner endpoint %s:%d",
			ErrInvalidHeader, h.TaskID, h.OwnerAddress, h.OwnerPort)
	}
	if h.TTL <= 0 {
		return fmt.Errorf("%w: task %s advertised with ttl %s", ErrInvalidHeader, h.TaskID, h.TTL)
	}
	return nil
}

// Expired returns true once the header's remaining TTL has run out.
func (h *TaskHeader) Expired() bool {
	return h.TTL <= 0
}

// SubtaskState tracks the lifecycle of a single subtask on this node.
type SubtaskState string

const (
	SubtaskRequested       SubtaskState = "REQUESTED"
	SubtaskResourceGranted SubtaskState = "RESOURCE_GRANTED"
	SubtaskComputing       SubtaskState = "COMPUTING"
	SubtaskResultSubmitted SubtaskState = "RESULT_SUBMITTED"
	SubtaskAccepted        SubtaskState = "ACCEPTED"
	SubtaskRejected        SubtaskState = "REJECTED"
)

// IsTerminal returns true if no further transition is allowed.
func (s SubtaskState) IsTerminal() bool {
	return s == SubtaskAccepted || s == SubtaskRejected
}

// TaskRequest is the opening message of an outbound work request.
type TaskRequest struct {
	NodeID               string  `json:"node_id"`
	TaskID               string  `json:"task_id"`
	EstimatedPerformance float64 `json:"estimated_performance"`
	MaxResourceSize      int64   `json:"max_resource_size"`
	MaxMemorySize        int64   `json:"max_memory_size"`
	NumCores             int     `json:"num_cores"`
}

// ResourceDescriptor names the resource files a granted subtask still
// needs. The actual byte transfer happens outside the core.
type ResourceDescriptor struct {
	TaskID string   `json:"task_id"`
	Files  []string `json:"files,omitempty"`
}

// ReportedResult is a computed subtask result on its way back to the
// task owner.
type ReportedResult struct {
	SubtaskID   string `json:"subtask_id"`
	TaskID      string `json:"task_id"`
	ResultType  string `json:"result_type"`
	Payload     []byte `json:"payload"`
	NodeAddress string `json:"node_address"`
	NodePort    int    `json:"node_port"`
}
