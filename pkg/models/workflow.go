// Package models defines the domain types exchanged with a Galaxy server and
// the local bookkeeping of workflow launches.
package models

import (
	"sort"
	"strconv"
)

// Step names that mark the workflow's declared inputs in an exported step graph.
const (
	StepNameInputDataset   = "Input dataset"
	StepNameInputParameter = "Input parameter"
)

// RenameDatasetAction is the post-job action type that renames a step output.
const RenameDatasetAction = "RenameDatasetAction"

// WorkflowSummary is one entry of the server's workflow listing.
type WorkflowSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Published bool   `json:"published,omitempty"`
}

// WorkflowExport is the exported definition of a workflow. Steps are keyed by
// their order index rendered as a string ("0", "1", ...).
type WorkflowExport struct {
	Name  string           `json:"name"`
	Steps map[string]*Step `json:"steps"`
}

// OrderedSteps returns the steps in export order. Numeric keys sort
// numerically; anything else sorts after them lexically.
func (w *WorkflowExport) OrderedSteps() []*Step {
	keys := make([]string, 0, len(w.Steps))
	for key := range w.Steps {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])

		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	steps := make([]*Step, 0, len(keys))
	for _, key := range keys {
		if w.Steps[key] != nil {
			steps = append(steps, w.Steps[key])
		}
	}

	return steps
}
