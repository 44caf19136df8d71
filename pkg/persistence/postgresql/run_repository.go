package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
)

const runColumns = `
			id
		  , workflow_name
		  , workflow_id
		  , server
		  , history_name
		  , history_id
		  , invocation_id
		  , state
		  , error_message
		  , staging_dir
		  , harvest
		  , cleaned
		  , created_at
		  , updated_at`

// RunRepository handles launch record database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// GetAll returns every run, newest first.
func (r *RunRepository) GetAll(ctx context.Context) ([]*models.Run, error) {
	query := `SELECT` + runColumns + `
		FROM runs
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	if id == "" {
		return nil, persistence.NewRunError("get", id, persistence.ErrInvalidRunID)
	}

	query := `SELECT` + runColumns + `
		FROM runs
		WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("get", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("get", id, err)
	}

	return run, nil
}

// Save inserts the run or replaces the stored row with the same id.
func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		return persistence.NewRunError("save", run.ID, persistence.ErrInvalidRunID)
	}

	query := `
		INSERT INTO runs (` + runColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			workflow_name = EXCLUDED.workflow_name
		  , workflow_id = EXCLUDED.workflow_id
		  , server = EXCLUDED.server
		  , history_name = EXCLUDED.history_name
		  , history_id = EXCLUDED.history_id
		  , invocation_id = EXCLUDED.invocation_id
		  , state = EXCLUDED.state
		  , error_message = EXCLUDED.error_message
		  , staging_dir = EXCLUDED.staging_dir
		  , harvest = EXCLUDED.harvest
		  , cleaned = EXCLUDED.cleaned
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowName,
		nullString(run.WorkflowID),
		run.Server,
		run.HistoryName,
		nullString(run.HistoryID),
		nullString(run.InvocationID),
		string(run.State),
		nullString(run.Error),
		nullString(run.StagingDir),
		run.Harvest,
		run.Cleaned,
		run.CreatedAt.UTC(),
		run.UpdatedAt.UTC(),
	)
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	return nil
}

func (r *RunRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE id = $1", id)
	if err != nil {
		return persistence.NewRunError("delete", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run   models.Run
		state string
	)

	var workflowID, historyID, invocationID, errorMessage, staging sql.NullString

	err := row.Scan(
		&run.ID,
		&run.WorkflowName,
		&workflowID,
		&run.Server,
		&run.HistoryName,
		&historyID,
		&invocationID,
		&state,
		&errorMessage,
		&staging,
		&run.Harvest,
		&run.Cleaned,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.State = models.LaunchState(state)
	run.WorkflowID = workflowID.String
	run.HistoryID = historyID.String
	run.InvocationID = invocationID.String
	run.Error = errorMessage.String
	run.StagingDir = staging.String

	return &run, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
