package models

import (
	"sort"
	"strings"
)

// Step is a single processing step of an exported workflow.
type Step struct {
	ID             int                      `json:"id"`
	Name           string                   `json:"name"`
	Type           string                   `json:"type,omitempty"`
	Label          string                   `json:"label,omitempty"`
	ToolID         string                   `json:"tool_id,omitempty"`
	Inputs         []StepInput              `json:"inputs"`
	Outputs        []StepOutput             `json:"outputs,omitempty"`
	PostJobActions map[string]PostJobAction `json:"post_job_actions,omitempty"`
}

type StepInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type StepOutput struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// PostJobAction is an action the server applies to a step's outputs once its
// job finishes.
type PostJobAction struct {
	ActionType      string         `json:"action_type"`
	OutputName      string         `json:"output_name,omitempty"`
	ActionArguments map[string]any `json:"action_arguments,omitempty"`
}

// InputKind reports which kind of workflow input the step declares, if any.
func (s *Step) InputKind() (SlotKind, bool) {
	switch s.Name {
	case StepNameInputDataset:
		return SlotKindDataset, true
	case StepNameInputParameter:
		return SlotKindParameter, true
	default:
		return "", false
	}
}

// RenamedOutput returns the new name set by a rename post-job action. When a
// step carries several, the one with the lowest action key wins.
func (s *Step) RenamedOutput() (string, bool) {
	keys := make([]string, 0, len(s.PostJobActions))
	for key, action := range s.PostJobActions {
		if action.ActionType == RenameDatasetAction || strings.HasPrefix(key, RenameDatasetAction) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	for _, key := range keys {
		newName, ok := s.PostJobActions[key].ActionArguments["newname"].(string)
		if ok && newName != "" {
			return newName, true
		}
	}

	return "", false
}
