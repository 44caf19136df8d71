package models

// Invocation states reported by the server.
const (
	InvocationStateNew       = "new"
	InvocationStateReady     = "ready"
	InvocationStateScheduled = "scheduled"
	InvocationStateCancelled = "cancelled"
	InvocationStateFailed    = "failed"
)

// Job states reported by the server.
const (
	JobStateNew      = "new"
	JobStateQueued   = "queued"
	JobStateRunning  = "running"
	JobStateOK       = "ok"
	JobStateError    = "error"
	JobStateDeleted  = "deleted"
	JobStateDeleting = "deleting"
	JobStatePaused   = "paused"
	JobStateSkipped  = "skipped"
)

// Invocation is one server-side request to run a workflow in a history.
type Invocation struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id,omitempty"`
	HistoryID  string `json:"history_id,omitempty"`
	State      string `json:"state"`
	UpdateTime string `json:"update_time,omitempty"`
}

// Terminal reports whether the server will not change the state any further.
func (i Invocation) Terminal() bool {
	switch i.State {
	case InvocationStateScheduled, InvocationStateCancelled, InvocationStateFailed:
		return true
	default:
		return false
	}
}

// Succeeded is true once every step of the invocation has been scheduled.
func (i Invocation) Succeeded() bool {
	return i.State == InvocationStateScheduled
}

// Job is a unit of execution spawned by an invocation.
type Job struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	ToolID   string `json:"tool_id,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

func (j Job) Terminal() bool {
	switch j.State {
	case JobStateOK, JobStateError, JobStateDeleted, JobStateDeleting, JobStatePaused, JobStateSkipped:
		return true
	default:
		return false
	}
}

func (j Job) Succeeded() bool {
	return j.State == JobStateOK
}
