// Package galaxy is a client for the Galaxy workflow server REST API.
package galaxy

import (
	"context"
	"encoding/json"

	"github.com/mcfe/galaxyflow/pkg/models"
)

// API is the subset of the server API galaxyflow drives.
type API interface {
	Version(ctx context.Context) (string, error)

	ListWorkflows(ctx context.Context) ([]models.WorkflowSummary, error)
	ExportWorkflow(ctx context.Context, workflowID string) (*models.WorkflowExport, error)

	CreateHistory(ctx context.Context, name string) (*models.History, error)
	DeleteHistory(ctx context.Context, historyID string, purge bool) error
	UploadFile(ctx context.Context, historyID, path, name string) (*models.Upload, error)

	InvokeWorkflow(ctx context.Context, workflowID, historyID string, inputs map[string]any) (*models.Invocation, error)
	ListInvocations(ctx context.Context, workflowID string) ([]models.Invocation, error)
	ShowInvocation(ctx context.Context, invocationID string) (*models.Invocation, error)
	CancelInvocation(ctx context.Context, invocationID string) error
	InvocationBioCompute(ctx context.Context, invocationID string) (json.RawMessage, error)

	ListJobs(ctx context.Context, invocationID string) ([]models.Job, error)
	ShowJob(ctx context.Context, jobID string) (*models.Job, error)

	ListHistoryDatasets(ctx context.Context, historyID string) ([]models.Dataset, error)
	ShowDataset(ctx context.Context, datasetID string) (*models.Dataset, error)
	DownloadDataset(ctx context.Context, dataset models.Dataset, dir string) (string, error)
}
