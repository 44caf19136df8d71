// Package persistence stores the local records of workflow launches so that
// remote histories left behind by interrupted launches can be found later.
package persistence

import (
	"context"
	"time"

	"github.com/mcfe/galaxyflow/pkg/models"
)

// RunStore persists launch records.
type RunStore interface {
	// SaveRun creates or replaces the record with run.ID.
	SaveRun(ctx context.Context, run *models.Run) error
	// RunByID returns ErrRunNotFound when no record exists.
	RunByID(ctx context.Context, id string) (*models.Run, error)
	// Runs returns every record, newest first.
	Runs(ctx context.Context) ([]*models.Run, error)
	// DeleteRun removes a record; deleting a missing record is not an error.
	DeleteRun(ctx context.Context, id string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// OrphanFilter selects runs whose remote history should be reclaimed.
type OrphanFilter struct {
	// StaleAfter is how long a failed or non-terminal run may go without an
	// update before its history is reclaimed. Failed runs keep their
	// history for inspection until then; unfinished runs are presumed
	// abandoned by a terminated process.
	StaleAfter time.Duration
	Now        time.Time
}

// Matches reports whether run still owns a history nobody will clean up.
func (f OrphanFilter) Matches(run *models.Run) bool {
	if !run.OwnsHistory() {
		return false
	}

	switch run.State {
	case models.LaunchStateAborted, models.LaunchStateCancelled:
		return true
	case models.LaunchStateDone:
		return false
	default:
		return f.StaleAfter > 0 && f.Now.Sub(run.UpdatedAt) > f.StaleAfter
	}
}

// Orphans filters the store's runs with filter.
func Orphans(ctx context.Context, store RunStore, filter OrphanFilter) ([]*models.Run, error) {
	runs, err := store.Runs(ctx)
	if err != nil {
		return nil, err
	}

	orphans := make([]*models.Run, 0)

	for _, run := range runs {
		if filter.Matches(run) {
			orphans = append(orphans, run)
		}
	}

	return orphans, nil
}
