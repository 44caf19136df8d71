package services

import "github.com/mcfe/galaxyflow/pkg/models"

// Outcome is the result of a launch: Failed, Launched or
// LaunchedWithArtifacts.
type Outcome interface {
	// Record is the final local record of the launch.
	Record() *models.Run
	outcome()
}

// Failed is a launch that stopped before finishing. Err carries the kind.
type Failed struct {
	Run *models.Run
	Err error
}

// Launched is a launch whose jobs all finished successfully.
type Launched struct {
	Run *models.Run
}

// LaunchedWithArtifacts is a harvested launch. The caller owns StagingDir.
type LaunchedWithArtifacts struct {
	Run        *models.Run
	StagingDir string
}

func (o Failed) Record() *models.Run                { return o.Run }
func (o Launched) Record() *models.Run              { return o.Run }
func (o LaunchedWithArtifacts) Record() *models.Run { return o.Run }

func (Failed) outcome()                {}
func (Launched) outcome()              {}
func (LaunchedWithArtifacts) outcome() {}

func (o Failed) Error() string {
	return o.Err.Error()
}

func (o Failed) Unwrap() error {
	return o.Err
}

// Kind returns the error kind of the failure.
func (o Failed) Kind() error {
	return KindOf(o.Err)
}

// Succeeded reports whether outcome is not a Failed.
func Succeeded(outcome Outcome) bool {
	_, failed := outcome.(Failed)

	return !failed
}
