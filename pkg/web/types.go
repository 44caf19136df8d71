package web

import (
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/services"
)

const (
	// ServerHeader overrides the default Galaxy server for one request.
	ServerHeader = "X-Galaxy-Server"
	// APIKeyHeader overrides the default API key for one request.
	APIKeyHeader = "X-API-Key"
)

// CheckRequest is the body of POST /check. Without a workflow name only the
// credential is checked.
type CheckRequest struct {
	WorkflowName string `json:"workflow_name,omitempty"`
}

type CheckResponse struct {
	Valid bool `json:"valid"`
}

// LaunchRequest is the body of POST /workflows/:name/launches.
type LaunchRequest struct {
	Inputs  map[string]any `json:"inputs"            validate:"required"`
	UID     string         `json:"uid,omitempty"     validate:"omitempty,max=128"`
	Harvest bool           `json:"harvest,omitempty"`
}

type LaunchResponse struct {
	RunID       string             `json:"run_id"`
	HistoryName string             `json:"history_name"`
	State       models.LaunchState `json:"state"`
}

type WorkflowsResponse struct {
	Workflows []string `json:"workflows"`
}

type InputsResponse struct {
	Workflow string             `json:"workflow"`
	Inputs   []models.InputSlot `json:"inputs"`
}

type OutputsResponse struct {
	Workflow string   `json:"workflow"`
	Outputs  []string `json:"outputs"`
}

// RunResponse is a run record without server-side paths.
type RunResponse struct {
	ID           string             `json:"id"`
	WorkflowName string             `json:"workflow_name"`
	HistoryName  string             `json:"history_name"`
	HistoryID    string             `json:"history_id,omitempty"`
	InvocationID string             `json:"invocation_id,omitempty"`
	State        models.LaunchState `json:"state"`
	Error        string             `json:"error,omitempty"`
	Harvest      bool               `json:"harvest"`
	Cleaned      bool               `json:"cleaned"`
	Succeeded    bool               `json:"succeeded"`
}

// TransformRunResponse drops the staging directory and server address from a run.
func TransformRunResponse(run *models.Run) RunResponse {
	return RunResponse{
		ID:           run.ID,
		WorkflowName: run.WorkflowName,
		HistoryName:  run.HistoryName,
		HistoryID:    run.HistoryID,
		InvocationID: run.InvocationID,
		State:        run.State,
		Error:        run.Error,
		Harvest:      run.Harvest,
		Cleaned:      run.Cleaned,
		Succeeded:    run.State == models.LaunchStateDone,
	}
}

func (r LaunchRequest) toService(credential models.Credential, workflowName string) services.LaunchRequest {
	return services.LaunchRequest{
		Credential:   credential,
		WorkflowName: workflowName,
		Inputs:       r.Inputs,
		ExecutionID:  r.UID,
		Harvest:      r.Harvest,
	}
}
