package services_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/mcfe/galaxyflow/pkg/eventbus"
	"github.com/mcfe/galaxyflow/pkg/events"
	"github.com/mcfe/galaxyflow/pkg/mocks"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence/file"
	"github.com/mcfe/galaxyflow/pkg/services"
	"github.com/mcfe/galaxyflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLauncher(t *testing.T, opts ...services.LauncherOption) *services.Launcher {
	t.Helper()

	return services.NewLauncher(testLogger(), testConfig(t), opts...)
}

func TestLauncher_ParameterWorkflow(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.PollsUntilDone = 2

	outcome := newLauncher(t).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Parameter workflow",
		Inputs:       map[string]any{"iterations": 12},
		ExecutionID:  "run-42",
	})

	launched, ok := outcome.(services.Launched)
	require.True(t, ok, "unexpected outcome %#v", outcome)
	assert.Equal(t, models.LaunchStateDone, launched.Run.State)
	assert.Equal(t, "Parameter workflow_run-42", launched.Run.HistoryName)
	assert.Equal(t, "wf-param", launched.Run.WorkflowID)
	assert.NotEmpty(t, launched.Run.InvocationID)
	assert.False(t, launched.Run.Cleaned)

	submissions := fake.Submissions()
	require.Len(t, submissions, 1)
	assert.Equal(t, "wf-param", submissions[0].WorkflowID)
	assert.Equal(t, launched.Run.HistoryID, submissions[0].HistoryID)
	assert.Equal(t, "step_index", submissions[0].InputsBy)
	assert.Equal(t, map[string]any{"0": float64(12)}, submissions[0].Inputs)
	assert.Empty(t, fake.DeletedHistories())
}

func TestLauncher_GeneratedExecutionID(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	outcome := newLauncher(t).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Parameter workflow",
		Inputs:       map[string]any{"iterations": "1"},
	})
	require.True(t, services.Succeeded(outcome))

	histories := fake.Histories()
	require.Len(t, histories, 1)
	assert.Regexp(t, `^Parameter workflow_[0-9a-f-]{36}$`, histories[0].Name)
}

func TestLauncher_TwoFileScenario(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	dir := t.TempDir()
	cadPath := filepath.Join(dir, "existing.h5m")
	configPath := filepath.Join(dir, "openmc_config.json")
	require.NoError(t, os.WriteFile(cadPath, []byte("geometry"), 0o600))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"batches": 10}`), 0o600))

	outcome := newLauncher(t).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Mesh workflow",
		Inputs:       map[string]any{"CAD": cadPath, "JSON_Config": configPath},
	})
	require.True(t, services.Succeeded(outcome), "outcome %#v", outcome)

	uploads := fake.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, "existing.h5m", uploads[0].Filename)
	assert.Equal(t, "openmc_config.json", uploads[1].Filename)

	submissions := fake.Submissions()
	require.Len(t, submissions, 1)
	require.Len(t, submissions[0].Inputs, 2)

	for _, key := range []string{"0", "1"} {
		binding, ok := submissions[0].Inputs[key].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "hda", binding["src"])
	}
}

func TestLauncher_ContractMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		inputs map[string]any
	}{
		{"missing parameter", map[string]any{"input1": "inline text value"}},
		{"misnamed key", map[string]any{"input1": "inline text value", "Input2": "x"}},
		{"no inputs", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := newFake(t)

			outcome := newLauncher(t).Launch(context.Background(), services.LaunchRequest{
				Credential:   credential(fake),
				WorkflowName: "Mixed workflow",
				Inputs:       tt.inputs,
			})

			failed, ok := outcome.(services.Failed)
			require.True(t, ok)
			require.ErrorIs(t, failed, services.ErrContractMismatch)
			assert.Equal(t, services.ErrContractMismatch, failed.Kind())
			assert.Equal(t, models.LaunchStateAborted, failed.Run.State)
			assert.Contains(t, failed.Run.Error, "not all inputs were provided or were not named correctly")
			assert.Empty(t, fake.Submissions())
			assert.Empty(t, fake.Uploads())
		})
	}
}

func TestLauncher_AbortKinds(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	tests := []struct {
		name string
		req  services.LaunchRequest
		kind error
	}{
		{
			name: "missing workflow name",
			req:  services.LaunchRequest{Credential: credential(fake)},
			kind: services.ErrConfig,
		},
		{
			name: "malformed address",
			req:  services.LaunchRequest{Credential: models.Credential{Address: "ftp://x", Key: apiKey}, WorkflowName: "wf"},
			kind: services.ErrConnectivity,
		},
		{
			name: "rejected key",
			req:  services.LaunchRequest{Credential: models.Credential{Address: fake.URL(), Key: "wrong"}, WorkflowName: "wf"},
			kind: services.ErrAuth,
		},
		{
			name: "unknown workflow",
			req:  services.LaunchRequest{Credential: credential(fake), WorkflowName: "Missing workflow"},
			kind: services.ErrResolution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			launcher := newLauncher(t)

			outcome := launcher.Launch(context.Background(), tt.req)

			failed, ok := outcome.(services.Failed)
			require.True(t, ok)
			assert.Equal(t, tt.kind, failed.Kind())
			assert.Equal(t, models.LaunchStateAborted, failed.Run.State)
			assert.True(t, services.IsClientError(failed.Err))
			assert.False(t, launcher.LaunchWorkflow(context.Background(), tt.req))
			assert.Empty(t, fake.Histories())
		})
	}
}

func TestLauncher_HarvestScenario(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.Outputs = []testutil.FakeOutput{
		{Name: "out_file1", Extension: "txt", Content: "concatenated"},
	}
	stagingRoot := t.TempDir()

	outcome := newLauncher(t).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Mixed workflow",
		Inputs:       map[string]any{"input1": "inline text value", "input2": "7"},
		ExecutionID:  "harvest",
		Harvest:      true,
		StagingRoot:  stagingRoot,
	})

	harvested, ok := outcome.(services.LaunchedWithArtifacts)
	require.True(t, ok, "unexpected outcome %#v", outcome)
	assert.Equal(t, stagingRoot, filepath.Dir(harvested.StagingDir))
	assert.Equal(t, harvested.StagingDir, harvested.Run.StagingDir)
	assert.True(t, harvested.Run.Cleaned)
	assert.Equal(t, models.LaunchStateDone, harvested.Run.State)

	entries, err := os.ReadDir(harvested.StagingDir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	assert.Equal(t, []string{"Galaxy1-[input1].txt", "Galaxy2-[out_file1].txt", services.BioComputeFilename}, names)

	content, err := os.ReadFile(filepath.Join(harvested.StagingDir, "Galaxy2-[out_file1].txt"))
	require.NoError(t, err)
	assert.Equal(t, "concatenated", string(content))

	var bco map[string]any

	raw, err := os.ReadFile(filepath.Join(harvested.StagingDir, services.BioComputeFilename))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &bco))
	assert.Equal(t, "bco-test", bco["object_id"])

	assert.Equal(t, []string{harvested.Run.HistoryID}, fake.DeletedHistories())
}

func TestLauncher_InvocationFailure(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.JobFinalState = models.JobStateError

	outcome := newLauncher(t).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Parameter workflow",
		Inputs:       map[string]any{"iterations": 1},
		Harvest:      true,
	})

	failed, ok := outcome.(services.Failed)
	require.True(t, ok)
	assert.Equal(t, services.ErrExecution, failed.Kind())
	assert.Equal(t, models.LaunchStateFailed, failed.Run.State)
	assert.Empty(t, fake.DeletedHistories())
	assert.Empty(t, failed.Run.StagingDir)
}

func TestLauncher_PollTimeoutCancelsInvocation(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.PollsUntilDone = 1_000_000

	cfg := testConfig(t)
	cfg.PollTimeout = 50 * time.Millisecond

	outcome := services.NewLauncher(testLogger(), cfg).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Parameter workflow",
		Inputs:       map[string]any{"iterations": 1},
	})

	failed, ok := outcome.(services.Failed)
	require.True(t, ok)
	assert.Equal(t, services.ErrPollTimeout, failed.Kind())
	assert.Equal(t, models.LaunchStateFailed, failed.Run.State)
	assert.Equal(t, []string{failed.Run.InvocationID}, fake.CancelledInvocations())
}

func TestLauncher_CancelDuringPolling(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.PollsUntilDone = 1_000_000

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		changed, ok := args.Get(2).(events.LaunchStateChanged)
		if ok && changed.To == models.LaunchStatePollingInvocation {
			cancel()
		}
	})

	outcome := newLauncher(t, services.WithEventPublisher(bus)).Launch(ctx, services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Parameter workflow",
		Inputs:       map[string]any{"iterations": 1},
	})

	failed, ok := outcome.(services.Failed)
	require.True(t, ok)
	assert.Equal(t, services.ErrCancelled, failed.Kind())
	assert.Equal(t, models.LaunchStateCancelled, failed.Run.State)
	assert.Equal(t, []string{failed.Run.InvocationID}, fake.CancelledInvocations())
}

func TestLauncher_RecordsRunsAndPublishesEvents(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	var saved []models.Run

	store := &mocks.MockRunStore{}
	store.On("SaveRun", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		saved = append(saved, *args.Get(1).(*models.Run))
	})

	var published []events.EventType

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		published = append(published, args.Get(2).(eventbus.Event).GetType())
	})

	outcome := newLauncher(t, services.WithRunStore(store), services.WithEventPublisher(bus)).Launch(
		context.Background(), services.LaunchRequest{
			Credential:   credential(fake),
			WorkflowName: "Parameter workflow",
			Inputs:       map[string]any{"iterations": 1},
		})
	require.True(t, services.Succeeded(outcome))

	states := make([]models.LaunchState, 0)

	for _, run := range saved {
		if len(states) == 0 || states[len(states)-1] != run.State {
			states = append(states, run.State)
		}
	}

	assert.Equal(t, []models.LaunchState{
		models.LaunchStateValidating,
		models.LaunchStateIntrospecting,
		models.LaunchStateMaterializing,
		models.LaunchStateSubmitting,
		models.LaunchStatePollingInvocation,
		models.LaunchStatePollingJob,
		models.LaunchStateDone,
	}, states)

	last := saved[len(saved)-1]
	assert.Equal(t, outcome.Record().ID, last.ID)
	assert.NotEmpty(t, last.HistoryID)

	require.NotEmpty(t, published)
	assert.Equal(t, events.LaunchCompletedEvent, published[len(published)-1])
	bus.AssertCalled(t, "Publish", mock.Anything, outcome.Record().ID, mock.Anything)
}

func TestLauncher_AbortAfterHistoryDeletesIt(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	scratchRoot := filepath.Join(t.TempDir(), "missing", "scratch")

	cfg := testConfig(t)
	cfg.ScratchRoot = scratchRoot

	outcome := services.NewLauncher(testLogger(), cfg).Launch(context.Background(), services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Mixed workflow",
		Inputs:       map[string]any{"input1": "inline text value", "input2": "x"},
	})

	failed, ok := outcome.(services.Failed)
	require.True(t, ok)
	assert.Equal(t, models.LaunchStateAborted, failed.Run.State)
	assert.True(t, failed.Run.Cleaned)
	assert.Equal(t, []string{failed.Run.HistoryID}, fake.DeletedHistories())
	assert.Empty(t, fake.Submissions())
}

func TestLauncher_HeartbeatWhilePolling(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.PollsUntilDone = 1_000_000

	cfg := testConfig(t)
	cfg.HeartbeatInterval = 10 * time.Millisecond

	store := file.NewPersistence(t.TempDir())
	launcher := services.NewLauncher(testLogger(), cfg, services.WithRunStore(store))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := services.LaunchRequest{
		Credential:   credential(fake),
		WorkflowName: "Parameter workflow",
		Inputs:       map[string]any{"iterations": 1},
	}
	run := services.NewRun(req)
	finished := make(chan services.Outcome, 1)

	go func() {
		finished <- launcher.LaunchRun(ctx, run, req)
	}()

	var polling *models.Run

	require.Eventually(t, func() bool {
		stored, err := store.RunByID(context.Background(), run.ID)
		if err != nil || stored.State != models.LaunchStatePollingInvocation {
			return false
		}

		polling = stored

		return true
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		stored, err := store.RunByID(context.Background(), run.ID)

		return err == nil &&
			stored.State == models.LaunchStatePollingInvocation &&
			stored.UpdatedAt.After(polling.UpdatedAt)
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	outcome := <-finished
	assert.Equal(t, models.LaunchStateCancelled, outcome.Record().State)
}
