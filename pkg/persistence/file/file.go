// Package file provides a run store keeping one JSON document per launch.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
)

const runsDir = "runs"

// Persistence implements persistence.RunStore on the local file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence stores runs under root, which may carry a file:// prefix.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

var _ persistence.RunStore = (*Persistence)(nil)

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(fp.root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", fp.root)
	}

	return nil
}

func validateRunID(id string) error {
	if id == "" || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return persistence.ErrInvalidRunID
	}

	return nil
}

func (fp *Persistence) path(id string) string {
	return filepath.Join(fp.root, runsDir, id+".json")
}

func (fp *Persistence) SaveRun(_ context.Context, run *models.Run) error {
	err := validateRunID(run.ID)
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err = os.MkdirAll(filepath.Join(fp.root, runsDir), 0o750)
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	// write then rename so readers never see a partial document
	tmp := fp.path(run.ID) + ".tmp"

	err = os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	err = os.Rename(tmp, fp.path(run.ID))
	if err != nil {
		_ = os.Remove(tmp)

		return persistence.NewRunError("save", run.ID, err)
	}

	return nil
}

func (fp *Persistence) RunByID(_ context.Context, id string) (*models.Run, error) {
	err := validateRunID(id)
	if err != nil {
		return nil, persistence.NewRunError("get", id, err)
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	run, err := readRun(fp.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRunError("get", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("get", id, err)
	}

	return run, nil
}

func (fp *Persistence) Runs(_ context.Context) ([]*models.Run, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(fp.root, runsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Run{}, nil
		}

		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*models.Run, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		run, err := readRun(filepath.Join(fp.root, runsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read run %s: %w", entry.Name(), err)
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

func (fp *Persistence) DeleteRun(_ context.Context, id string) error {
	err := validateRunID(id)
	if err != nil {
		return persistence.NewRunError("delete", id, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err = os.Remove(fp.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewRunError("delete", id, err)
	}

	return nil
}

func readRun(path string) (*models.Run, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- id validated, joined to the store root
	if err != nil {
		return nil, err
	}

	var run models.Run

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
