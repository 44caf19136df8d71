package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"github.com/mcfe/galaxyflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(id string, created time.Time) *models.Run {
	return &models.Run{
		ID:           id,
		WorkflowName: "Mesh workflow",
		Server:       "https://galaxy.example",
		HistoryName:  "Mesh workflow_" + id,
		HistoryID:    "hist-" + id,
		State:        models.LaunchStatePollingJob,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestPersistence_SaveAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	run := newRun("run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.RunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	run.State = models.LaunchStateDone
	require.NoError(t, store.SaveRun(ctx, run))

	got, err = store.RunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.LaunchStateDone, got.State)
}

func TestPersistence_RunsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence("file://" + t.TempDir())

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRun(ctx, newRun("old", base)))
	require.NoError(t, store.SaveRun(ctx, newRun("new", base.Add(time.Hour))))
	require.NoError(t, store.SaveRun(ctx, newRun("mid", base.Add(time.Minute))))

	runs, err = store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Equal(t, "old", runs[2].ID)
}

func TestPersistence_NotFoundAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	_, err := store.RunByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))

	require.NoError(t, store.SaveRun(ctx, newRun("run-1", time.Now())))
	require.NoError(t, store.DeleteRun(ctx, "run-1"))
	require.NoError(t, store.DeleteRun(ctx, "run-1"))

	_, err = store.RunByID(ctx, "run-1")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestPersistence_InvalidIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		require.ErrorIs(t, store.SaveRun(ctx, newRun(id, time.Now())), persistence.ErrInvalidRunID)

		_, err := store.RunByID(ctx, id)
		require.ErrorIs(t, err, persistence.ErrInvalidRunID)
		require.ErrorIs(t, store.DeleteRun(ctx, id), persistence.ErrInvalidRunID)
	}
}

func TestPersistence_HealthCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()

	assert.NoError(t, file.NewPersistence(root).HealthCheck(ctx))
	assert.Error(t, file.NewPersistence(filepath.Join(root, "missing")).HealthCheck(ctx))

	regular := filepath.Join(root, "regular")
	require.NoError(t, os.WriteFile(regular, nil, 0o600))
	assert.Error(t, file.NewPersistence(regular).HealthCheck(ctx))
	assert.NoError(t, file.NewPersistence(root).Close(ctx))
}
