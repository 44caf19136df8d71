package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
)

// Descriptor is a workflow resolved by name together with its exported
// step graph. It is fetched fresh on every call.
type Descriptor struct {
	Summary models.WorkflowSummary
	Export  *models.WorkflowExport
	Slots   []models.InputSlot
}

// Introspector answers questions about the workflows a credential can see.
type Introspector struct {
	logger    *slog.Logger
	connector *Connector
}

func NewIntrospector(logger *slog.Logger, connector *Connector) *Introspector {
	return &Introspector{
		logger:    logger.With("module", "introspector"),
		connector: connector,
	}
}

// ListWorkflows returns the names of every workflow visible to the credential.
func (i *Introspector) ListWorkflows(ctx context.Context, credential models.Credential) ([]string, error) {
	api, err := i.connector.Connect(ctx, credential)
	if err != nil {
		return nil, err
	}

	workflows, err := api.ListWorkflows(ctx)
	if err != nil {
		return nil, remoteError("list workflows", err)
	}

	names := make([]string, 0, len(workflows))
	for _, workflow := range workflows {
		names = append(names, workflow.Name)
	}

	return names, nil
}

// WorkflowExists reports whether name is one of ListWorkflows.
func (i *Introspector) WorkflowExists(ctx context.Context, credential models.Credential, name string) (bool, error) {
	names, err := i.ListWorkflows(ctx, credential)
	if err != nil {
		return false, err
	}

	for _, candidate := range names {
		if candidate == name {
			return true, nil
		}
	}

	return false, nil
}

// CheckWorkflow is WorkflowExists with failures logged and folded into false.
func (i *Introspector) CheckWorkflow(ctx context.Context, credential models.Credential, name string) bool {
	exists, err := i.WorkflowExists(ctx, credential, name)
	if err != nil {
		i.logger.Error("Failed to check workflow", "workflow_name", name, "error", err)

		return false
	}

	if !exists {
		i.logger.Error("Workflow not found on galaxy instance", "workflow_name", name)
	}

	return exists
}

// Inputs returns the workflow's expected input slots in step order.
func (i *Introspector) Inputs(ctx context.Context, credential models.Credential, name string) ([]models.InputSlot, error) {
	api, err := i.connector.Connect(ctx, credential)
	if err != nil {
		return nil, err
	}

	descriptor, err := i.Describe(ctx, api, name)
	if err != nil {
		return nil, err
	}

	return descriptor.Slots, nil
}

// Outputs returns the human-facing output names of the workflow in step order.
func (i *Introspector) Outputs(ctx context.Context, credential models.Credential, name string) ([]string, error) {
	api, err := i.connector.Connect(ctx, credential)
	if err != nil {
		return nil, err
	}

	descriptor, err := i.Describe(ctx, api, name)
	if err != nil {
		return nil, err
	}

	return OutputNames(descriptor.Export), nil
}

// Describe resolves name to the first listed workflow carrying it and
// exports its step graph.
func (i *Introspector) Describe(ctx context.Context, api galaxy.API, name string) (*Descriptor, error) {
	const op = "describe workflow"

	workflows, err := api.ListWorkflows(ctx)
	if err != nil {
		return nil, remoteError(op, err)
	}

	var summary *models.WorkflowSummary

	for index := range workflows {
		if workflows[index].Name == name {
			summary = &workflows[index]

			break
		}
	}

	if summary == nil {
		return nil, newError(ErrResolution, op, "workflow "+name+" not found on galaxy instance", nil)
	}

	export, err := api.ExportWorkflow(ctx, summary.ID)
	if err != nil {
		return nil, remoteError(op, err)
	}

	i.logger.Debug("Exported workflow", "workflow_name", name, "workflow_id", summary.ID, "steps", len(export.Steps))

	return &Descriptor{
		Summary: *summary,
		Export:  export,
		Slots:   InputSlots(export),
	}, nil
}

// InputSlots lists one slot per declared input of every input dataset or
// input parameter step. Other steps and steps without inputs are skipped.
func InputSlots(export *models.WorkflowExport) []models.InputSlot {
	slots := make([]models.InputSlot, 0)

	for _, step := range export.OrderedSteps() {
		kind, ok := step.InputKind()
		if !ok {
			continue
		}

		for _, input := range step.Inputs {
			slots = append(slots, models.InputSlot{Kind: kind, Name: input.Name, StepID: step.ID})
		}
	}

	return slots
}

// OutputNames lists the declared outputs of every step. A step with a rename
// post-job action contributes only its new name.
func OutputNames(export *models.WorkflowExport) []string {
	names := make([]string, 0)

	for _, step := range export.OrderedSteps() {
		if len(step.Outputs) == 0 {
			continue
		}

		if renamed, ok := step.RenamedOutput(); ok {
			names = append(names, renamed)

			continue
		}

		for _, output := range step.Outputs {
			names = append(names, output.Name)
		}
	}

	return names
}

func remoteError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return newError(ErrCancelled, op, "", err)
	}

	if galaxy.IsUnauthorized(err) {
		return newError(ErrAuth, op, "", err)
	}

	return newError(ErrRemote, op, "", err)
}
