package models

import "time"

// LaunchState is a stage of the launch state machine.
type LaunchState string

const (
	LaunchStateValidating        LaunchState = "validating"
	LaunchStateIntrospecting     LaunchState = "introspecting"
	LaunchStateMaterializing     LaunchState = "materializing"
	LaunchStateSubmitting        LaunchState = "submitting"
	LaunchStatePollingInvocation LaunchState = "polling_invocation"
	LaunchStatePollingJob        LaunchState = "polling_job"
	LaunchStateHarvesting        LaunchState = "harvesting"
	LaunchStateDone              LaunchState = "done"
	LaunchStateAborted           LaunchState = "aborted"
	LaunchStateFailed            LaunchState = "failed"
	LaunchStateCancelled         LaunchState = "cancelled"
)

// Terminal reports whether the launch has stopped progressing.
func (s LaunchState) Terminal() bool {
	switch s {
	case LaunchStateDone, LaunchStateAborted, LaunchStateFailed, LaunchStateCancelled:
		return true
	default:
		return false
	}
}

// Run is the local record of one launch and the remote resources it owns.
type Run struct {
	ID           string      `json:"id"`
	WorkflowName string      `json:"workflow_name"`
	WorkflowID   string      `json:"workflow_id,omitempty"`
	Server       string      `json:"server"`
	HistoryName  string      `json:"history_name"`
	HistoryID    string      `json:"history_id,omitempty"`
	InvocationID string      `json:"invocation_id,omitempty"`
	State        LaunchState `json:"state"`
	Error        string      `json:"error,omitempty"`
	StagingDir   string      `json:"staging_dir,omitempty"`
	Harvest      bool        `json:"harvest"`
	Cleaned      bool        `json:"cleaned"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// OwnsHistory is true while the run's history still exists remotely as far
// as the local record knows.
func (r *Run) OwnsHistory() bool {
	return r.HistoryID != "" && !r.Cleaned
}
