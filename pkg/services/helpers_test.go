package services_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/testutil"
)

const apiKey = "secret-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Client {
	t.Helper()

	cfg := config.Default()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollMaxInterval = 20 * time.Millisecond
	cfg.RequestTimeout = 10 * time.Second
	cfg.StagingRoot = t.TempDir()
	cfg.ScratchRoot = t.TempDir()

	return cfg
}

// newFake serves three workflows:
//   - "Mesh workflow" (wf-mesh): dataset slots CAD and JSON_Config, renamed output
//   - "Mixed workflow" (wf-mixed): dataset slot input1, parameter slot input2
//   - "Parameter workflow" (wf-param): a single parameter slot
func newFake(t *testing.T) *testutil.FakeGalaxy {
	t.Helper()

	fake := testutil.NewFakeGalaxy(apiKey)
	t.Cleanup(fake.Close)

	fake.AddWorkflow("wf-mesh", testutil.CreateExport("Mesh workflow",
		testutil.CreateInputStep(0, models.SlotKindDataset, "CAD"),
		testutil.CreateInputStep(1, models.SlotKindDataset, "JSON_Config"),
		testutil.CreateToolStep(2, "cad_to_h5m", []string{"h5m", "log"}, testutil.WithRename("dagmc.h5m")),
		testutil.CreateToolStep(3, "openmc", []string{"statepoint", "summary"}),
	))

	fake.AddWorkflow("wf-mixed", testutil.CreateExport("Mixed workflow",
		testutil.CreateInputStep(0, models.SlotKindDataset, "input1"),
		testutil.CreateInputStep(1, models.SlotKindParameter, "input2"),
		testutil.CreateToolStep(2, "cat1", []string{"out_file1"}),
	))

	fake.AddWorkflow("wf-param", testutil.CreateExport("Parameter workflow",
		testutil.CreateInputStep(0, models.SlotKindParameter, "iterations"),
		testutil.CreateToolStep(1, "echo", []string{"stdout"}),
	))

	return fake
}

func credential(fake *testutil.FakeGalaxy) models.Credential {
	return models.Credential{Address: fake.URL(), Key: apiKey}
}
