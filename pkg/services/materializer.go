package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
)

// Materializer binds caller values to input slots, uploading dataset values
// into the launch history.
type Materializer struct {
	logger      *slog.Logger
	scratchRoot string
}

func NewMaterializer(logger *slog.Logger, scratchRoot string) *Materializer {
	return &Materializer{
		logger:      logger.With("module", "materializer"),
		scratchRoot: scratchRoot,
	}
}

// MissingInputs returns the declared names of slots no value is supplied for.
func MissingInputs(slots []models.InputSlot, values map[string]any) []string {
	missing := make([]string, 0)

	for _, slot := range slots {
		if _, ok := values[slot.Name]; !ok {
			missing = append(missing, slot.Name)
		}
	}

	return missing
}

// Materialize returns the invocation inputs keyed by step id. Dataset values
// naming an existing regular file are uploaded as is; any other value is
// written to a scratch file named after the slot, uploaded and removed.
// Parameter values pass through untouched. Slots without a value are left
// unbound.
func (m *Materializer) Materialize(
	ctx context.Context,
	api galaxy.API,
	historyID string,
	slots []models.InputSlot,
	values map[string]any,
) (map[string]any, error) {
	bindings := make(map[string]any, len(slots))

	for _, slot := range slots {
		value, ok := values[slot.Name]
		if !ok {
			continue
		}

		switch slot.Kind {
		case models.SlotKindDataset:
			binding, err := m.uploadValue(ctx, api, historyID, slot, value)
			if err != nil {
				return nil, err
			}

			bindings[slot.Key()] = binding
		case models.SlotKindParameter:
			bindings[slot.Key()] = value
		}
	}

	return bindings, nil
}

func (m *Materializer) uploadValue(
	ctx context.Context,
	api galaxy.API,
	historyID string,
	slot models.InputSlot,
	value any,
) (models.DatasetBinding, error) {
	text := fmt.Sprint(value)

	info, err := os.Stat(text)
	if err == nil && info.Mode().IsRegular() {
		m.logger.Debug("Uploading file", "input", slot.Name, "path", text)

		return m.upload(ctx, api, historyID, text, filepath.Base(text))
	}

	return m.uploadInline(ctx, api, historyID, slot.Name, text)
}

func (m *Materializer) uploadInline(
	ctx context.Context,
	api galaxy.API,
	historyID, name, content string,
) (models.DatasetBinding, error) {
	const op = "materialize inputs"

	dir, err := os.MkdirTemp(m.scratchRoot, "galaxyflow-upload-")
	if err != nil {
		return models.DatasetBinding{}, newError(ErrConfig, op, "failed to create scratch directory", err)
	}

	defer func() {
		err := os.RemoveAll(dir)
		if err != nil {
			m.logger.Warn("Failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	path := filepath.Join(dir, scratchFilename(name))

	err = os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		return models.DatasetBinding{}, newError(ErrConfig, op, "failed to write scratch file", err)
	}

	m.logger.Debug("Uploading inline value", "input", name, "bytes", len(content))

	return m.upload(ctx, api, historyID, path, name)
}

func (m *Materializer) upload(
	ctx context.Context,
	api galaxy.API,
	historyID, path, name string,
) (models.DatasetBinding, error) {
	const op = "materialize inputs"

	upload, err := api.UploadFile(ctx, historyID, path, name)
	if err != nil {
		return models.DatasetBinding{}, remoteError(op, err)
	}

	if len(upload.Outputs) == 0 {
		return models.DatasetBinding{}, newError(ErrRemote, op, "upload of "+name+" produced no dataset", nil)
	}

	return models.NewDatasetBinding(upload.Outputs[0].ID), nil
}

func scratchFilename(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "input"
	}

	return name
}
