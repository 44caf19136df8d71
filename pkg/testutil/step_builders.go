// Package testutil provides test data builders and an in-memory Galaxy server.
package testutil

import (
	"strconv"

	"github.com/mcfe/galaxyflow/pkg/models"
)

// CreateInputStep creates an input step declaring one workflow input.
func CreateInputStep(id int, kind models.SlotKind, name string, overrides ...func(*models.Step)) *models.Step {
	stepName := models.StepNameInputDataset
	if kind == models.SlotKindParameter {
		stepName = models.StepNameInputParameter
	}

	step := &models.Step{
		ID:      id,
		Name:    stepName,
		Type:    "data_input",
		Label:   name,
		Inputs:  []models.StepInput{{Name: name}},
		Outputs: []models.StepOutput{{Name: "output", Type: "input"}},
	}

	if kind == models.SlotKindParameter {
		step.Type = "parameter_input"
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// CreateToolStep creates a tool step producing the named outputs.
func CreateToolStep(id int, toolID string, outputs []string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:     id,
		Name:   toolID,
		Type:   "tool",
		ToolID: toolID,
		Inputs: []models.StepInput{},
	}

	for _, output := range outputs {
		step.Outputs = append(step.Outputs, models.StepOutput{Name: output, Type: "data"})
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithRename adds a rename post-job action on the step's first output.
func WithRename(newName string) func(*models.Step) {
	return func(s *models.Step) {
		outputName := "output"
		if len(s.Outputs) > 0 {
			outputName = s.Outputs[0].Name
		}

		if s.PostJobActions == nil {
			s.PostJobActions = map[string]models.PostJobAction{}
		}

		s.PostJobActions[models.RenameDatasetAction+outputName] = models.PostJobAction{
			ActionType:      models.RenameDatasetAction,
			OutputName:      outputName,
			ActionArguments: map[string]any{"newname": newName},
		}
	}
}

// WithoutOutputs drops the outputs entry of a step.
func WithoutOutputs() func(*models.Step) {
	return func(s *models.Step) {
		s.Outputs = nil
	}
}

// CreateExport assembles a workflow export keyed by step id.
func CreateExport(name string, steps ...*models.Step) *models.WorkflowExport {
	export := &models.WorkflowExport{Name: name, Steps: map[string]*models.Step{}}

	for _, step := range steps {
		export.Steps[strconv.Itoa(step.ID)] = step
	}

	return export
}
