package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
)

// BioComputeFilename is the provenance report written next to harvested datasets.
const BioComputeFilename = "biocompute_object.json"

// Harvester downloads a finished run's history to local disk and deletes
// the history afterwards.
type Harvester struct {
	logger *slog.Logger
	purge  bool
}

func NewHarvester(logger *slog.Logger, purge bool) *Harvester {
	return &Harvester{
		logger: logger.With("module", "harvester"),
		purge:  purge,
	}
}

// Harvest creates a staging directory under stagingRoot, downloads every
// dataset of the run's history into it, writes the invocation's BioCompute
// object and deletes the history. The caller owns the returned directory.
// On failure the directory is removed and the history is kept.
func (h *Harvester) Harvest(ctx context.Context, api galaxy.API, run *models.Run, stagingRoot string) (string, error) {
	const op = "harvest"

	err := os.MkdirAll(stagingRoot, 0o750)
	if err != nil {
		return "", newError(ErrConfig, op, "failed to create staging root", err)
	}

	dir, err := os.MkdirTemp(stagingRoot, stagingPrefix(run.HistoryName))
	if err != nil {
		return "", newError(ErrConfig, op, "failed to create staging directory", err)
	}

	harvested := false

	defer func() {
		if harvested {
			return
		}

		err := os.RemoveAll(dir)
		if err != nil {
			h.logger.Warn("Failed to remove staging directory", "dir", dir, "error", err)
		}
	}()

	datasets, err := api.ListHistoryDatasets(ctx, run.HistoryID)
	if err != nil {
		return "", remoteError(op, err)
	}

	for _, dataset := range datasets {
		path, err := api.DownloadDataset(ctx, dataset, dir)
		if err != nil {
			return "", remoteError(op, err)
		}

		h.logger.Debug("Downloaded dataset", "dataset_id", dataset.ID, "path", path)
	}

	err = h.writeBioCompute(ctx, api, run.InvocationID, dir)
	if err != nil {
		return "", err
	}

	err = api.DeleteHistory(ctx, run.HistoryID, h.purge)
	if err != nil {
		return "", remoteError(op, err)
	}

	harvested = true

	h.logger.Info("Harvested history", "history_id", run.HistoryID, "datasets", len(datasets), "dir", dir)

	return dir, nil
}

func (h *Harvester) writeBioCompute(ctx context.Context, api galaxy.API, invocationID, dir string) error {
	const op = "harvest"

	raw, err := api.InvocationBioCompute(ctx, invocationID)
	if err != nil {
		return remoteError(op, err)
	}

	var document any

	err = json.Unmarshal(raw, &document)
	if err != nil {
		return newError(ErrRemote, op, "invalid BioCompute object", err)
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return newError(ErrRemote, op, "invalid BioCompute object", err)
	}

	err = os.WriteFile(filepath.Join(dir, BioComputeFilename), data, 0o600)
	if err != nil {
		return newError(ErrConfig, op, "failed to write BioCompute object", err)
	}

	return nil
}

func stagingPrefix(historyName string) string {
	var b strings.Builder

	for _, r := range historyName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	if b.Len() == 0 {
		return "galaxyflow-"
	}

	return b.String() + "-"
}
