// Package events defines the notifications published while a workflow launch
// moves through its states.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcfe/galaxyflow/pkg/models"
)

type EventType string

// Topic carries every launch event.
const Topic = "galaxyflow.launches"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	LaunchStateChangedEvent EventType = "launch.state_changed"
	LaunchCompletedEvent    EventType = "launch.completed"
	LaunchFailedEvent       EventType = "launch.failed"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	RunID        string         `json:"run_id"`
	WorkflowName string         `json:"workflow_name"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, runID, workflowName string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		RunID:        runID,
		WorkflowName: workflowName,
	}
}

// LaunchStateChanged is published on every state machine transition.
type LaunchStateChanged struct {
	BaseEvent

	From models.LaunchState `json:"from,omitempty"`
	To   models.LaunchState `json:"to"`
}

func (e LaunchStateChanged) GetType() EventType {
	return LaunchStateChangedEvent
}

// LaunchCompleted is published once all jobs finished (and artifacts were
// harvested when requested).
type LaunchCompleted struct {
	BaseEvent

	HistoryID    string `json:"history_id"`
	InvocationID string `json:"invocation_id"`
	StagingDir   string `json:"staging_dir,omitempty"`
}

func (e LaunchCompleted) GetType() EventType {
	return LaunchCompletedEvent
}

// LaunchFailed is published when a launch aborts, fails or is cancelled.
type LaunchFailed struct {
	BaseEvent

	State models.LaunchState `json:"state"`
	Kind  string             `json:"kind,omitempty"`
	Error string             `json:"error"`
}

func (e LaunchFailed) GetType() EventType {
	return LaunchFailedEvent
}
