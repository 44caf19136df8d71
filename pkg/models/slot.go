package models

import "strconv"

// SlotKind distinguishes uploaded datasets from pass-through parameters.
type SlotKind string

const (
	SlotKindDataset   SlotKind = "dataset"
	SlotKindParameter SlotKind = "parameter"
)

// InputSlot is one expected workflow input. Name is the human-facing declared
// name used to match caller values; StepID is the opaque invocation key.
type InputSlot struct {
	Kind   SlotKind `json:"kind"`
	Name   string   `json:"name"`
	StepID int      `json:"step_id"`
}

// Key returns the string-coerced step id the invocation payload is keyed by.
func (s InputSlot) Key() string {
	return strconv.Itoa(s.StepID)
}

// DatasetBinding references an uploaded history dataset as an invocation input.
type DatasetBinding struct {
	Src string `json:"src"`
	ID  string `json:"id"`
}

// NewDatasetBinding binds a history dataset (hda) by id.
func NewDatasetBinding(datasetID string) DatasetBinding {
	return DatasetBinding{Src: "hda", ID: datasetID}
}
