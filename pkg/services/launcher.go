package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/eventbus"
	"github.com/mcfe/galaxyflow/pkg/events"
	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/otelhelper"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const cleanupTimeout = 30 * time.Second

// LaunchRequest describes one workflow launch.
type LaunchRequest struct {
	Credential   models.Credential
	WorkflowName string `validate:"required"`

	// Inputs maps declared input names to file paths, inline text or
	// parameter values.
	Inputs map[string]any

	// ExecutionID names the history together with the workflow name. A
	// random id is used when empty.
	ExecutionID string

	// Harvest downloads the history to a staging directory and deletes it.
	Harvest bool

	// StagingRoot overrides the configured staging root for this launch.
	StagingRoot string
}

// HistoryName is the deterministic name of the launch history.
func (r LaunchRequest) HistoryName() string {
	executionID := r.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	return r.WorkflowName + "_" + executionID
}

// Launcher drives a launch through validation, introspection, input
// upload, submission, polling and the optional harvest.
type Launcher struct {
	logger       *slog.Logger
	cfg          config.Client
	validator    *validator.Validate
	connector    *Connector
	introspector *Introspector
	materializer *Materializer
	poller       *Poller
	harvester    *Harvester
	runs         persistence.RunStore
	publisher    eventbus.EventPublisher
	tracer       trace.Tracer

	// active holds the ids of runs this launcher is driving.
	active sync.Map
}

type LauncherOption func(*Launcher)

// WithRunStore records every state change of every launch.
func WithRunStore(runs persistence.RunStore) LauncherOption {
	return func(l *Launcher) {
		l.runs = runs
	}
}

func WithEventPublisher(publisher eventbus.EventPublisher) LauncherOption {
	return func(l *Launcher) {
		l.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) LauncherOption {
	return func(l *Launcher) {
		l.tracer = tracer
	}
}

func WithConnector(connector *Connector) LauncherOption {
	return func(l *Launcher) {
		l.connector = connector
	}
}

func NewLauncher(logger *slog.Logger, cfg config.Client, opts ...LauncherOption) *Launcher {
	launcher := &Launcher{
		logger:       logger.With("module", "launcher"),
		cfg:          cfg,
		validator:    validator.New(validator.WithRequiredStructEnabled()),
		materializer: NewMaterializer(logger, cfg.ScratchRoot),
		poller:       NewPoller(logger, cfg),
		harvester:    NewHarvester(logger, cfg.PurgeHistories),
		publisher:    eventbus.Discard{},
		tracer:       otelhelper.NoopTracer(),
	}

	for _, opt := range opts {
		opt(launcher)
	}

	if launcher.connector == nil {
		launcher.connector = NewConnector(logger, cfg)
	}

	launcher.introspector = NewIntrospector(logger, launcher.connector)

	return launcher
}

// NewRun prepares the local record of a launch without starting it.
func NewRun(req LaunchRequest) *models.Run {
	now := time.Now().UTC()

	return &models.Run{
		ID:           uuid.New().String(),
		WorkflowName: req.WorkflowName,
		Server:       req.Credential.Address,
		HistoryName:  req.HistoryName(),
		Harvest:      req.Harvest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Launch runs req to completion and returns its outcome.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) Outcome {
	return l.LaunchRun(ctx, NewRun(req), req)
}

// LaunchWorkflow is Launch folded into a boolean, logging the failure.
func (l *Launcher) LaunchWorkflow(ctx context.Context, req LaunchRequest) bool {
	return Succeeded(l.Launch(ctx, req))
}

// Active reports whether a launch of this launcher is still driving the run.
func (l *Launcher) Active(runID string) bool {
	_, ok := l.active.Load(runID)

	return ok
}

// LaunchRun runs req under a record created beforehand with NewRun, so
// callers starting launches in the background can hand out the run id first.
func (l *Launcher) LaunchRun(ctx context.Context, run *models.Run, req LaunchRequest) Outcome {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "galaxyflow.launch",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowNameKey, req.WorkflowName),
		attribute.String(otelhelper.ServerKey, req.Credential.Address),
	)
	defer span.End()

	l.active.Store(run.ID, struct{}{})
	defer l.active.Delete(run.ID)

	logger := l.logger.With("run_id", run.ID, "workflow_name", req.WorkflowName)

	outcome := l.launch(ctx, logger, run, req)

	if failed, ok := outcome.(Failed); ok {
		otelhelper.SetError(span, failed.Err, attribute.String(otelhelper.StateKey, string(run.State)))
		logger.Error("Workflow launch failed", "state", run.State, "error", failed.Err)
	} else {
		logger.Info("Workflow launch finished", "history_id", run.HistoryID, "invocation_id", run.InvocationID)
	}

	return outcome
}

func (l *Launcher) launch(ctx context.Context, logger *slog.Logger, run *models.Run, req LaunchRequest) Outcome {
	l.transition(ctx, run, models.LaunchStateValidating)

	err := l.validator.Struct(req)
	if err != nil {
		return l.abort(ctx, nil, run, newError(ErrConfig, "launch", "", err))
	}

	api, err := l.connector.Connect(ctx, req.Credential)
	if err != nil {
		return l.abort(ctx, nil, run, err)
	}

	l.transition(ctx, run, models.LaunchStateIntrospecting)

	descriptor, err := l.introspector.Describe(ctx, api, req.WorkflowName)
	if err != nil {
		return l.abort(ctx, api, run, err)
	}

	run.WorkflowID = descriptor.Summary.ID

	l.transition(ctx, run, models.LaunchStateMaterializing)

	missing := MissingInputs(descriptor.Slots, req.Inputs)
	if len(missing) > 0 {
		logger.Error("Missing workflow inputs", "missing", missing)

		return l.abort(ctx, api, run, newError(ErrContractMismatch, "materialize inputs", "", nil))
	}

	history, err := api.CreateHistory(ctx, run.HistoryName)
	if err != nil {
		return l.abort(ctx, api, run, remoteError("create history", err))
	}

	run.HistoryID = history.ID
	l.save(ctx, run)

	bindings, err := l.materializer.Materialize(ctx, api, history.ID, descriptor.Slots, req.Inputs)
	if err != nil {
		return l.abort(ctx, api, run, err)
	}

	if len(bindings) != len(descriptor.Slots) {
		return l.abort(ctx, api, run, newError(ErrContractMismatch, "materialize inputs", "", nil))
	}

	l.transition(ctx, run, models.LaunchStateSubmitting)

	invocation, err := l.submit(ctx, api, run, bindings)
	if err != nil {
		return l.abort(ctx, api, run, err)
	}

	run.InvocationID = invocation.ID

	l.transition(ctx, run, models.LaunchStatePollingInvocation)

	err = l.whilePolling(ctx, run, func(ctx context.Context) error {
		_, err := l.poller.WaitForInvocation(ctx, api, invocation.ID)

		return err
	})
	if err != nil {
		return l.fail(ctx, api, run, err)
	}

	l.transition(ctx, run, models.LaunchStatePollingJob)

	err = l.whilePolling(ctx, run, func(ctx context.Context) error {
		_, err := l.poller.WaitForJobs(ctx, api, invocation.ID)

		return err
	})
	if err != nil {
		return l.fail(ctx, api, run, err)
	}

	if !req.Harvest {
		l.finish(ctx, run)

		return Launched{Run: run}
	}

	l.transition(ctx, run, models.LaunchStateHarvesting)

	stagingRoot := req.StagingRoot
	if stagingRoot == "" {
		stagingRoot = l.cfg.StagingRoot
	}

	dir, err := l.harvester.Harvest(ctx, api, run, stagingRoot)
	if err != nil {
		return l.fail(ctx, api, run, err)
	}

	run.StagingDir = dir
	run.Cleaned = true
	l.finish(ctx, run)

	return LaunchedWithArtifacts{Run: run, StagingDir: dir}
}

func (l *Launcher) submit(ctx context.Context, api galaxy.API, run *models.Run, bindings map[string]any) (*models.Invocation, error) {
	const op = "submit invocation"

	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "galaxyflow.submit",
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.HistoryIDKey, run.HistoryID),
	)
	defer span.End()

	invocation, err := api.InvokeWorkflow(ctx, run.WorkflowID, run.HistoryID, bindings)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, remoteError(op, err)
	}

	if invocation.ID != "" {
		return invocation, nil
	}

	invocations, err := api.ListInvocations(ctx, run.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, remoteError(op, err)
	}

	for index := range invocations {
		if invocations[index].HistoryID == run.HistoryID {
			return &invocations[index], nil
		}
	}

	return nil, newError(ErrRemote, op, "invocation not found for history "+run.HistoryID, nil)
}

// abort ends a launch that never reached the server's scheduler. A history
// created for it is deleted.
func (l *Launcher) abort(ctx context.Context, api galaxy.API, run *models.Run, err error) Outcome {
	if api != nil && run.HistoryID != "" {
		l.deleteHistory(ctx, api, run)
	}

	return l.stop(ctx, run, models.LaunchStateAborted, err)
}

// fail ends a launch after submission. Cancellation and poll timeouts stop
// the remote invocation; the history is kept for inspection.
func (l *Launcher) fail(ctx context.Context, api galaxy.API, run *models.Run, err error) Outcome {
	state := models.LaunchStateFailed

	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrPollTimeout) {
		l.cancelInvocation(ctx, api, run)
	}

	if errors.Is(err, ErrCancelled) {
		state = models.LaunchStateCancelled
	}

	return l.stop(ctx, run, state, err)
}

func (l *Launcher) stop(ctx context.Context, run *models.Run, state models.LaunchState, err error) Outcome {
	run.Error = err.Error()
	l.transition(ctx, run, state)

	kind := ""
	if k := KindOf(err); k != nil {
		kind = k.Error()
	}

	l.publish(ctx, run, events.LaunchFailed{
		BaseEvent: events.NewBaseEvent(events.LaunchFailedEvent, run.ID, run.WorkflowName),
		State:     state,
		Kind:      kind,
		Error:     run.Error,
	})

	return Failed{Run: run, Err: err}
}

func (l *Launcher) finish(ctx context.Context, run *models.Run) {
	l.transition(ctx, run, models.LaunchStateDone)

	l.publish(ctx, run, events.LaunchCompleted{
		BaseEvent:    events.NewBaseEvent(events.LaunchCompletedEvent, run.ID, run.WorkflowName),
		HistoryID:    run.HistoryID,
		InvocationID: run.InvocationID,
		StagingDir:   run.StagingDir,
	})
}

func (l *Launcher) deleteHistory(ctx context.Context, api galaxy.API, run *models.Run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := api.DeleteHistory(ctx, run.HistoryID, l.cfg.PurgeHistories)
	if err != nil {
		l.logger.Warn("Failed to delete history", "run_id", run.ID, "history_id", run.HistoryID, "error", err)

		return
	}

	run.Cleaned = true
}

func (l *Launcher) cancelInvocation(ctx context.Context, api galaxy.API, run *models.Run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := api.CancelInvocation(ctx, run.InvocationID)
	if err != nil {
		l.logger.Warn("Failed to cancel invocation", "run_id", run.ID, "invocation_id", run.InvocationID, "error", err)
	}
}

func (l *Launcher) transition(ctx context.Context, run *models.Run, state models.LaunchState) {
	from := run.State
	run.State = state
	run.UpdatedAt = time.Now().UTC()

	trace.SpanFromContext(ctx).AddEvent("state_changed", trace.WithAttributes(
		attribute.String(otelhelper.StateKey, string(state)),
	))

	l.logger.Debug("Launch state changed", "run_id", run.ID, "from", from, "to", state)
	l.save(ctx, run)

	l.publish(ctx, run, events.LaunchStateChanged{
		BaseEvent: events.NewBaseEvent(events.LaunchStateChangedEvent, run.ID, run.WorkflowName),
		From:      from,
		To:        state,
	})
}

// whilePolling runs wait while refreshing run.UpdatedAt in the store every
// HeartbeatInterval. The run is only touched by the heartbeat until wait
// returns.
func (l *Launcher) whilePolling(ctx context.Context, run *models.Run, wait func(ctx context.Context) error) error {
	if l.runs == nil || l.cfg.HeartbeatInterval <= 0 {
		return wait(ctx)
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(l.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				run.UpdatedAt = time.Now().UTC()
				l.save(ctx, run)
			}
		}
	}()

	err := wait(ctx)

	close(done)
	<-stopped

	return err
}

func (l *Launcher) save(ctx context.Context, run *models.Run) {
	if l.runs == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	snapshot := *run

	err := l.runs.SaveRun(ctx, &snapshot)
	if err != nil {
		l.logger.Warn("Failed to save run", "run_id", run.ID, "error", err)
	}
}

func (l *Launcher) publish(ctx context.Context, run *models.Run, event eventbus.Event) {
	err := l.publisher.Publish(context.WithoutCancel(ctx), run.ID, event)
	if err != nil {
		l.logger.Warn("Failed to publish launch event", "run_id", run.ID, "event_type", event.GetType(), "error", err)
	}
}
