// Package janitor reclaims remote histories left behind by launches that
// were aborted, cancelled or abandoned by a terminated process.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"github.com/mcfe/galaxyflow/pkg/services"
	"github.com/robfig/cron/v3"
)

// DefaultStaleAfter is how long a non-terminal run may sit untouched before
// its history is considered orphaned.
const DefaultStaleAfter = 24 * time.Hour

var ErrAlreadyStarted = errors.New("janitor already started")

// ActiveRuns reports runs a launcher in this process is still driving.
// *services.Launcher implements it.
type ActiveRuns interface {
	Active(runID string) bool
}

// Report summarizes one sweep.
type Report struct {
	Cleaned []string
	Skipped []string
	Failed  map[string]error
}

type Janitor struct {
	logger     *slog.Logger
	store      persistence.RunStore
	connector  *services.Connector
	credential models.Credential
	purge      bool
	staleAfter time.Duration
	now        func() time.Time
	active     ActiveRuns

	cron   *cron.Cron
	mutex  sync.Mutex
	cancel context.CancelFunc
}

type Option func(*Janitor)

func WithStaleAfter(d time.Duration) Option {
	return func(j *Janitor) {
		j.staleAfter = d
	}
}

func WithPurge(purge bool) Option {
	return func(j *Janitor) {
		j.purge = purge
	}
}

// WithActiveRuns skips runs that active still drives, whatever their age.
func WithActiveRuns(active ActiveRuns) Option {
	return func(j *Janitor) {
		j.active = active
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// New sweeps runs recorded against credential's server. Runs recorded for
// other servers are skipped.
func New(
	logger *slog.Logger,
	store persistence.RunStore,
	connector *services.Connector,
	credential models.Credential,
	opts ...Option,
) *Janitor {
	janitor := &Janitor{
		logger:     logger.With("module", "janitor"),
		store:      store,
		connector:  connector,
		credential: credential,
		purge:      true,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(janitor)
	}

	return janitor
}

// Sweep deletes the history of every orphaned run once and marks the run
// cleaned. A history already gone on the server counts as cleaned.
func (j *Janitor) Sweep(ctx context.Context) (*Report, error) {
	orphans, err := persistence.Orphans(ctx, j.store, persistence.OrphanFilter{
		StaleAfter: j.staleAfter,
		Now:        j.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned runs: %w", err)
	}

	report := &Report{Failed: map[string]error{}}

	if j.active != nil {
		orphans = slices.DeleteFunc(orphans, func(run *models.Run) bool {
			if !j.active.Active(run.ID) {
				return false
			}

			j.logger.DebugContext(ctx, "Skipping run still being launched", "run_id", run.ID, "state", run.State)
			report.Skipped = append(report.Skipped, run.ID)

			return true
		})
	}

	if len(orphans) == 0 {
		return report, nil
	}

	api, err := j.connector.Connect(ctx, j.credential)
	if err != nil {
		return nil, err
	}

	for _, run := range orphans {
		logger := j.logger.With("run_id", run.ID, "history_id", run.HistoryID)

		if !sameServer(run.Server, j.credential.Address) {
			logger.DebugContext(ctx, "Skipping run recorded for another server", "server", run.Server)
			report.Skipped = append(report.Skipped, run.ID)

			continue
		}

		err := api.DeleteHistory(ctx, run.HistoryID, j.purge)
		if err != nil && !galaxy.IsNotFound(err) {
			logger.ErrorContext(ctx, "Failed to delete orphaned history", "error", err)
			report.Failed[run.ID] = err

			continue
		}

		run.Cleaned = true
		run.UpdatedAt = j.now().UTC()

		err = j.store.SaveRun(ctx, run)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mark run cleaned", "error", err)
			report.Failed[run.ID] = err

			continue
		}

		logger.InfoContext(ctx, "Deleted orphaned history", "state", run.State)
		report.Cleaned = append(report.Cleaned, run.ID)
	}

	return report, nil
}

// Start runs Sweep on a standard five-field cron schedule until Stop.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.cron != nil {
		return ErrAlreadyStarted
	}

	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression '%s': %w", schedule, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = scheduler.AddFunc(schedule, func() {
		report, err := j.Sweep(ctx)
		if err != nil {
			j.logger.ErrorContext(ctx, "Janitor sweep failed", "error", err)

			return
		}

		j.logger.InfoContext(ctx, "Janitor sweep finished",
			"cleaned", len(report.Cleaned),
			"skipped", len(report.Skipped),
			"failed", len(report.Failed),
		)
	})
	if err != nil {
		cancel()

		return fmt.Errorf("failed to add janitor job: %w", err)
	}

	scheduler.Start()

	j.cron = scheduler
	j.cancel = cancel

	j.logger.InfoContext(ctx, "Janitor started", "schedule", schedule)

	return nil
}

// Stop halts the schedule and waits for a running sweep to return.
func (j *Janitor) Stop() {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.cron == nil {
		return
	}

	j.cancel()
	<-j.cron.Stop().Done()

	j.cron = nil
	j.cancel = nil
}

func sameServer(a, b string) bool {
	return strings.TrimRight(strings.TrimSpace(a), "/") == strings.TrimRight(strings.TrimSpace(b), "/")
}
