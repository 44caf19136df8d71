package galaxy_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "test-key"

func newFake(t *testing.T) *testutil.FakeGalaxy {
	t.Helper()

	fake := testutil.NewFakeGalaxy(apiKey)
	t.Cleanup(fake.Close)

	fake.AddWorkflow("wf-1", testutil.CreateExport("Mesh workflow",
		testutil.CreateInputStep(0, models.SlotKindDataset, "CAD"),
		testutil.CreateToolStep(1, "gmsh", []string{"mesh"}, testutil.WithRename("mesh.msh")),
	))

	return fake
}

func newClient(t *testing.T, address, key string) *galaxy.Client {
	t.Helper()

	client, err := galaxy.NewClient(address, key)
	require.NoError(t, err)

	return client
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		address  string
		expected string
		wantErr  bool
	}{
		{name: "http with trailing slash", address: "http://localhost:8080/", expected: "http://localhost:8080"},
		{name: "https with prefix", address: "https://usegalaxy.org/galaxy", expected: "https://usegalaxy.org/galaxy"},
		{name: "missing scheme", address: "localhost:8080", wantErr: true},
		{name: "unsupported scheme", address: "ftp://example.org", wantErr: true},
		{name: "garbage", address: "::not a url", wantErr: true},
		{name: "no host", address: "http://", wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := galaxy.ParseAddress(testCase.address)
			if testCase.wantErr {
				require.ErrorIs(t, err, galaxy.ErrInvalidAddress)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.expected, parsed.String())
		})
	}
}

func TestClient_VersionIsUnauthenticated(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	version, err := newClient(t, fake.URL(), "").Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "24.1.2", version)
	assert.Zero(t, fake.AuthenticatedCalls())
}

func TestClient_ListWorkflows(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	workflows, err := newClient(t, fake.URL(), apiKey).ListWorkflows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.WorkflowSummary{{ID: "wf-1", Name: "Mesh workflow"}}, workflows)
}

func TestClient_RejectedKey(t *testing.T) {
	t.Parallel()

	fake := newFake(t)

	_, err := newClient(t, fake.URL(), "wrong").ListWorkflows(context.Background())
	require.Error(t, err)
	assert.True(t, galaxy.IsUnauthorized(err))
	assert.False(t, galaxy.IsNotFound(err))
}

func TestClient_ExportWorkflow(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	client := newClient(t, fake.URL(), apiKey)

	export, err := client.ExportWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Mesh workflow", export.Name)
	require.Len(t, export.OrderedSteps(), 2)

	renamed, ok := export.OrderedSteps()[1].RenamedOutput()
	require.True(t, ok)
	assert.Equal(t, "mesh.msh", renamed)

	_, err = client.ExportWorkflow(context.Background(), "missing")
	assert.True(t, galaxy.IsNotFound(err))
}

func TestClient_UploadInvokeAndDownload(t *testing.T) {
	t.Parallel()

	fake := newFake(t)
	fake.Outputs = []testutil.FakeOutput{{Name: "mesh.msh", Extension: "msh", Content: "$MeshFormat"}}

	ctx := context.Background()
	client := newClient(t, fake.URL(), apiKey)

	history, err := client.CreateHistory(ctx, "Mesh workflow_abc")
	require.NoError(t, err)
	assert.Equal(t, "Mesh workflow_abc", history.Name)

	source := filepath.Join(t.TempDir(), "model.step")
	require.NoError(t, os.WriteFile(source, []byte("ISO-10303-21;"), 0o600))

	upload, err := client.UploadFile(ctx, history.ID, source, "CAD")
	require.NoError(t, err)
	require.Len(t, upload.Outputs, 1)

	uploads := fake.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "CAD", uploads[0].Name)
	assert.Equal(t, "ISO-10303-21;", uploads[0].Content)

	invocation, err := client.InvokeWorkflow(ctx, "wf-1", history.ID, map[string]any{
		"0": models.NewDatasetBinding(upload.Outputs[0].ID),
	})
	require.NoError(t, err)

	submissions := fake.Submissions()
	require.Len(t, submissions, 1)
	assert.Equal(t, "step_index", submissions[0].InputsBy)
	assert.Equal(t, map[string]any{"src": "hda", "id": upload.Outputs[0].ID}, submissions[0].Inputs["0"])

	shown, err := client.ShowInvocation(ctx, invocation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvocationStateScheduled, shown.State)

	invocations, err := client.ListInvocations(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, invocations, 1)

	jobs, err := client.ListJobs(ctx, invocation.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job, err := client.ShowJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateOK, job.State)

	datasets, err := client.ListHistoryDatasets(ctx, history.ID)
	require.NoError(t, err)
	require.Len(t, datasets, 2)

	detail, err := client.ShowDataset(ctx, datasets[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "msh", detail.Extension)

	dir := t.TempDir()
	path, err := client.DownloadDataset(ctx, *detail, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Galaxy2-[mesh.msh].msh"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "$MeshFormat", string(content))

	report, err := client.InvocationBioCompute(ctx, invocation.ID)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(report, &decoded))
	assert.Equal(t, "bco-test", decoded["object_id"])

	require.NoError(t, client.DeleteHistory(ctx, history.ID, true))
	assert.Equal(t, []string{history.ID}, fake.DeletedHistories())
}

func TestClient_DownloadFallsBackToDefaultFilename(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/datasets/ds-9/display", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("to_ext"))
		_, _ = w.Write([]byte(`{"k": 1}`))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	path, err := newClient(t, server.URL, apiKey).DownloadDataset(context.Background(),
		models.Dataset{ID: "ds-9", HID: 3, Name: "tallies", Extension: "json"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Galaxy3-[tallies].json"), path)
}

func TestClient_APIErrorCarriesBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"err_msg": "boom"}`))
	}))
	t.Cleanup(server.Close)

	_, err := newClient(t, server.URL, apiKey).ShowJob(context.Background(), "job-1")

	var apiErr *galaxy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "/api/jobs/job-1", apiErr.Path)
	assert.Contains(t, apiErr.Error(), "boom")
}
