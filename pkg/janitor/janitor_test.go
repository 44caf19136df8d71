package janitor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/janitor"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence/file"
	"github.com/mcfe/galaxyflow/pkg/services"
	"github.com/mcfe/galaxyflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "secret-key"

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	fake    *testutil.FakeGalaxy
	store   *file.Persistence
	janitor *janitor.Janitor
}

func setup(t *testing.T) *fixture {
	t.Helper()

	fake := testutil.NewFakeGalaxy(apiKey)
	t.Cleanup(fake.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	connector := services.NewConnector(logger, config.Default())
	credential := models.Credential{Address: fake.URL(), Key: apiKey}

	return &fixture{
		fake:  fake,
		store: store,
		janitor: janitor.New(logger, store, connector, credential,
			janitor.WithStaleAfter(time.Hour),
			janitor.WithClock(func() time.Time { return now }),
		),
	}
}

func (f *fixture) saveRun(t *testing.T, id string, state models.LaunchState, updated time.Time, withHistory bool) *models.Run {
	t.Helper()

	run := &models.Run{
		ID:           id,
		WorkflowName: "Mixed workflow",
		Server:       f.fake.URL(),
		HistoryName:  "Mixed workflow_" + id,
		State:        state,
		CreatedAt:    updated,
		UpdatedAt:    updated,
	}

	if withHistory {
		client, err := galaxy.NewClient(f.fake.URL(), apiKey)
		require.NoError(t, err)

		history, err := client.CreateHistory(context.Background(), run.HistoryName)
		require.NoError(t, err)

		run.HistoryID = history.ID
	}

	require.NoError(t, f.store.SaveRun(context.Background(), run))

	return run
}

func TestJanitor_Sweep(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	aborted := f.saveRun(t, "aborted", models.LaunchStateAborted, now, true)
	stale := f.saveRun(t, "stale", models.LaunchStatePollingJob, now.Add(-2*time.Hour), true)
	f.saveRun(t, "active", models.LaunchStatePollingJob, now.Add(-time.Minute), true)
	f.saveRun(t, "failed", models.LaunchStateFailed, now, true)
	f.saveRun(t, "no-history", models.LaunchStateCancelled, now, false)

	other := f.saveRun(t, "other-server", models.LaunchStateCancelled, now, true)
	other.Server = "https://elsewhere.example"
	require.NoError(t, f.store.SaveRun(ctx, other))

	report, err := f.janitor.Sweep(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"aborted", "stale"}, report.Cleaned)
	assert.Equal(t, []string{"other-server"}, report.Skipped)
	assert.Empty(t, report.Failed)
	assert.ElementsMatch(t, []string{aborted.HistoryID, stale.HistoryID}, f.fake.DeletedHistories())

	got, err := f.store.RunByID(ctx, "aborted")
	require.NoError(t, err)
	assert.True(t, got.Cleaned)
	assert.False(t, got.OwnsHistory())

	report, err = f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Cleaned)
	assert.Len(t, f.fake.DeletedHistories(), 2)
}

func TestJanitor_SweepStaleFailedRun(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	stale := f.saveRun(t, "failed-stale", models.LaunchStateFailed, now.Add(-2*time.Hour), true)
	f.saveRun(t, "failed-recent", models.LaunchStateFailed, now.Add(-time.Minute), true)

	report, err := f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"failed-stale"}, report.Cleaned)
	assert.Equal(t, []string{stale.HistoryID}, f.fake.DeletedHistories())
}

func TestJanitor_SweepSkipsRunsStillPolling(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.fake.PollsUntilDone = 1_000_000
	f.fake.AddWorkflow("wf-param", testutil.CreateExport("Parameter workflow",
		testutil.CreateInputStep(0, models.SlotKindParameter, "iterations"),
		testutil.CreateToolStep(1, "echo", []string{"stdout"}),
	))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollMaxInterval = 20 * time.Millisecond
	cfg.StagingRoot = t.TempDir()
	cfg.ScratchRoot = t.TempDir()

	credential := models.Credential{Address: f.fake.URL(), Key: apiKey}
	connector := services.NewConnector(logger, cfg)
	launcher := services.NewLauncher(logger, cfg,
		services.WithConnector(connector),
		services.WithRunStore(f.store),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := services.NewRun(services.LaunchRequest{Credential: credential, WorkflowName: "Parameter workflow"})
	finished := make(chan services.Outcome, 1)

	go func() {
		finished <- launcher.LaunchRun(ctx, run, services.LaunchRequest{
			Credential:   credential,
			WorkflowName: "Parameter workflow",
			Inputs:       map[string]any{"iterations": 1},
		})
	}()

	require.Eventually(t, func() bool {
		stored, err := f.store.RunByID(context.Background(), run.ID)

		return err == nil && stored.State == models.LaunchStatePollingInvocation
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, launcher.Active(run.ID))

	sweeper := janitor.New(logger, f.store, connector, credential,
		janitor.WithActiveRuns(launcher),
		janitor.WithClock(func() time.Time { return time.Now().Add(25 * time.Hour) }),
	)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Cleaned)
	assert.Equal(t, []string{run.ID}, report.Skipped)
	assert.Empty(t, f.fake.DeletedHistories())

	cancel()

	outcome := <-finished
	assert.Equal(t, models.LaunchStateCancelled, outcome.Record().State)
	assert.False(t, launcher.Active(run.ID))
}

func TestJanitor_SweepHistoryAlreadyGone(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	run := f.saveRun(t, "gone", models.LaunchStateCancelled, now, false)
	run.HistoryID = "hist-missing"
	require.NoError(t, f.store.SaveRun(ctx, run))

	report, err := f.janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, report.Cleaned)
}

func TestJanitor_SweepWithoutOrphansMakesNoCalls(t *testing.T) {
	t.Parallel()

	f := setup(t)

	report, err := f.janitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Cleaned)
	assert.Zero(t, f.fake.AuthenticatedCalls())
}

func TestJanitor_StartStop(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	require.Error(t, f.janitor.Start(ctx, "not a cron"))

	require.NoError(t, f.janitor.Start(ctx, "@every 1h"))
	require.ErrorIs(t, f.janitor.Start(ctx, "@every 1h"), janitor.ErrAlreadyStarted)

	f.janitor.Stop()
	f.janitor.Stop()

	require.NoError(t, f.janitor.Start(ctx, "*/5 * * * *"))
	f.janitor.Stop()
}
