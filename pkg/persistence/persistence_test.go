package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/mcfe/galaxyflow/pkg/mocks"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrphanFilter_Matches(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	filter := persistence.OrphanFilter{StaleAfter: time.Hour, Now: now}

	tests := []struct {
		name     string
		run      models.Run
		expected bool
	}{
		{"aborted with history", models.Run{State: models.LaunchStateAborted, HistoryID: "h1", UpdatedAt: now}, true},
		{"cancelled with history", models.Run{State: models.LaunchStateCancelled, HistoryID: "h1", UpdatedAt: now}, true},
		{"aborted before history", models.Run{State: models.LaunchStateAborted, UpdatedAt: now}, false},
		{"already cleaned", models.Run{State: models.LaunchStateAborted, HistoryID: "h1", Cleaned: true}, false},
		{"done", models.Run{State: models.LaunchStateDone, HistoryID: "h1"}, false},
		{"failed recently keeps history", models.Run{State: models.LaunchStateFailed, HistoryID: "h1", UpdatedAt: now.Add(-time.Minute)}, false},
		{"failed stale", models.Run{State: models.LaunchStateFailed, HistoryID: "h1", UpdatedAt: now.Add(-2 * time.Hour)}, true},
		{"polling recently", models.Run{State: models.LaunchStatePollingJob, HistoryID: "h1", UpdatedAt: now.Add(-time.Minute)}, false},
		{"polling stale", models.Run{State: models.LaunchStatePollingJob, HistoryID: "h1", UpdatedAt: now.Add(-2 * time.Hour)}, true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, filter.Matches(&testCase.run))
		})
	}
}

func TestOrphans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &mocks.MockRunStore{}
	store.On("Runs", mock.Anything).Return([]*models.Run{
		{ID: "a", State: models.LaunchStateAborted, HistoryID: "h1"},
		{ID: "b", State: models.LaunchStateDone, HistoryID: "h2"},
	}, nil)

	orphans, err := persistence.Orphans(ctx, store, persistence.OrphanFilter{Now: time.Now()})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "a", orphans[0].ID)
	store.AssertExpectations(t)
}
