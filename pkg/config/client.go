// Package config holds the explicit settings passed to the launch pipeline
// and the loader for launch configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned for any configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Client tunes how the pipeline talks to a Galaxy server and where it
// writes local files.
type Client struct {
	// PollInterval is the first wait between status requests.
	PollInterval time.Duration `validate:"gt=0"`

	// PollMaxInterval caps the exponential backoff between status requests.
	PollMaxInterval time.Duration `validate:"gtefield=PollInterval"`

	// PollTimeout bounds each polling stage. Zero waits forever.
	PollTimeout time.Duration `validate:"gte=0"`

	// HeartbeatInterval is how often a polling launch refreshes its run
	// record so other processes do not take it for abandoned. Zero
	// disables the refresh.
	HeartbeatInterval time.Duration `validate:"gte=0"`

	// RequestTimeout bounds every single HTTP request.
	RequestTimeout time.Duration `validate:"gt=0"`

	// MaxTransientErrors is how many consecutive failed status requests
	// polling tolerates.
	MaxTransientErrors int `validate:"gte=0"`

	// StagingRoot receives harvest directories.
	StagingRoot string `validate:"required"`

	// ScratchRoot receives short lived upload files.
	ScratchRoot string `validate:"required"`

	// PurgeHistories purges instead of just deleting cleaned up histories.
	PurgeHistories bool
}

func Default() Client {
	return Client{
		PollInterval:       2 * time.Second,
		PollMaxInterval:    30 * time.Second,
		PollTimeout:        0,
		HeartbeatInterval:  5 * time.Minute,
		RequestTimeout:     5 * time.Minute,
		MaxTransientErrors: 5,
		StagingRoot:        ".",
		ScratchRoot:        os.TempDir(),
		PurgeHistories:     true,
	}
}

func (c Client) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// EnsureDirs creates the staging and scratch roots.
func (c Client) EnsureDirs() error {
	for _, dir := range []string{c.StagingRoot, c.ScratchRoot} {
		err := os.MkdirAll(filepath.Clean(dir), 0o750)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	return nil
}
