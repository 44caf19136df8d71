package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/mcfe/galaxyflow/pkg/models"
)

// FakeUpload records one dataset received through the upload tool.
type FakeUpload struct {
	HistoryID string
	Name      string
	Filename  string
	Content   string
}

// FakeSubmission records one workflow invocation request.
type FakeSubmission struct {
	WorkflowID string
	HistoryID  string
	InputsBy   string
	Inputs     map[string]any
}

// FakeOutput is a dataset the fake server adds to the history on invocation.
type FakeOutput struct {
	Name      string
	Extension string
	Content   string
}

type fakeDataset struct {
	models.Dataset

	historyID string
	content   string
}

// FakeGalaxy is an in-memory Galaxy server for tests. Invocations and jobs
// report a non-terminal state for PollsUntilDone reads and then settle on
// InvocationFinalState / JobFinalState.
type FakeGalaxy struct {
	Server *httptest.Server
	APIKey string

	PollsUntilDone       int
	InvocationFinalState string
	JobFinalState        string
	JobsPerInvocation    int
	Outputs              []FakeOutput
	BioCompute           map[string]any

	mu                 sync.Mutex
	workflows          []models.WorkflowSummary
	exports            map[string]*models.WorkflowExport
	histories          map[string]*models.History
	datasets           []*fakeDataset
	invocations        map[string]*models.Invocation
	invocationPolls    map[string]int
	jobs               map[string][]*models.Job
	jobPolls           map[string]int
	uploads            []FakeUpload
	submissions        []FakeSubmission
	deletedHistories   []string
	cancelled          []string
	authenticatedCalls int
	sequence           int
}

// NewFakeGalaxy starts a fake server accepting apiKey.
func NewFakeGalaxy(apiKey string) *FakeGalaxy {
	fake := &FakeGalaxy{
		APIKey:               apiKey,
		InvocationFinalState: models.InvocationStateScheduled,
		JobFinalState:        models.JobStateOK,
		JobsPerInvocation:    1,
		BioCompute:           map[string]any{"object_id": "bco-test", "spec_version": "https://w3id.org/ieee/ieee-2791-schema/2791object.json"},
		exports:              map[string]*models.WorkflowExport{},
		histories:            map[string]*models.History{},
		invocations:          map[string]*models.Invocation{},
		invocationPolls:      map[string]int{},
		jobs:                 map[string][]*models.Job{},
		jobPolls:             map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", fake.version)
	mux.HandleFunc("GET /api/workflows", fake.authenticated(fake.listWorkflows))
	mux.HandleFunc("GET /api/workflows/{id}/download", fake.authenticated(fake.exportWorkflow))
	mux.HandleFunc("POST /api/workflows/{id}/invocations", fake.authenticated(fake.invoke))
	mux.HandleFunc("POST /api/histories", fake.authenticated(fake.createHistory))
	mux.HandleFunc("DELETE /api/histories/{id}", fake.authenticated(fake.deleteHistory))
	mux.HandleFunc("GET /api/histories/{id}/contents", fake.authenticated(fake.historyContents))
	mux.HandleFunc("POST /api/tools", fake.authenticated(fake.upload))
	mux.HandleFunc("GET /api/invocations", fake.authenticated(fake.listInvocations))
	mux.HandleFunc("GET /api/invocations/{id}", fake.authenticated(fake.showInvocation))
	mux.HandleFunc("DELETE /api/invocations/{id}", fake.authenticated(fake.cancelInvocation))
	mux.HandleFunc("GET /api/invocations/{id}/biocompute", fake.authenticated(fake.bioCompute))
	mux.HandleFunc("GET /api/jobs", fake.authenticated(fake.listJobs))
	mux.HandleFunc("GET /api/jobs/{id}", fake.authenticated(fake.showJob))
	mux.HandleFunc("GET /api/datasets/{id}", fake.authenticated(fake.showDataset))
	mux.HandleFunc("GET /api/datasets/{id}/display", fake.authenticated(fake.displayDataset))

	fake.Server = httptest.NewServer(mux)

	return fake
}

func (f *FakeGalaxy) URL() string {
	return f.Server.URL
}

func (f *FakeGalaxy) Close() {
	f.Server.Close()
}

// AddWorkflow registers a workflow and its export under id.
func (f *FakeGalaxy) AddWorkflow(id string, export *models.WorkflowExport) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.workflows = append(f.workflows, models.WorkflowSummary{ID: id, Name: export.Name})
	f.exports[id] = export
}

func (f *FakeGalaxy) AuthenticatedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.authenticatedCalls
}

func (f *FakeGalaxy) Uploads() []FakeUpload {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]FakeUpload(nil), f.uploads...)
}

func (f *FakeGalaxy) Submissions() []FakeSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]FakeSubmission(nil), f.submissions...)
}

func (f *FakeGalaxy) Histories() []models.History {
	f.mu.Lock()
	defer f.mu.Unlock()

	histories := make([]models.History, 0, len(f.histories))
	for _, history := range f.histories {
		histories = append(histories, *history)
	}

	return histories
}

func (f *FakeGalaxy) DeletedHistories() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.deletedHistories...)
}

func (f *FakeGalaxy) CancelledInvocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.cancelled...)
}

// HistoryDatasetNames lists dataset names currently in a history.
func (f *FakeGalaxy) HistoryDatasetNames(historyID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string

	for _, dataset := range f.datasets {
		if dataset.historyID == historyID {
			names = append(names, dataset.Name)
		}
	}

	return names
}

func (f *FakeGalaxy) nextID(prefix string) string {
	f.sequence++

	return fmt.Sprintf("%s%d", prefix, f.sequence)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"err_msg": "not found"})
}

func (f *FakeGalaxy) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authenticatedCalls++
		f.mu.Unlock()

		if r.Header.Get("x-api-key") != f.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"err_msg": "Provided API key is not valid."})

			return
		}

		next(w, r)
	}
}

func (f *FakeGalaxy) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version_major": "24.1", "version_minor": "2"})
}

func (f *FakeGalaxy) listWorkflows(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, http.StatusOK, f.workflows)
}

func (f *FakeGalaxy) exportWorkflow(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	export, ok := f.exports[r.PathValue("id")]
	if !ok || r.URL.Query().Get("style") != "export" {
		notFound(w)

		return
	}

	writeJSON(w, http.StatusOK, export)
}

func (f *FakeGalaxy) createHistory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"err_msg": err.Error()})

		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	history := &models.History{ID: f.nextID("hist-"), Name: body.Name}
	f.histories[history.ID] = history

	writeJSON(w, http.StatusOK, history)
}

func (f *FakeGalaxy) deleteHistory(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	history, ok := f.histories[r.PathValue("id")]
	if !ok {
		notFound(w)

		return
	}

	history.Deleted = true
	history.Purged = r.URL.Query().Get("purge") == "true"
	f.deletedHistories = append(f.deletedHistories, history.ID)

	writeJSON(w, http.StatusOK, history)
}

func (f *FakeGalaxy) addDataset(historyID, name, extension, content string) *fakeDataset {
	hid := 1

	for _, dataset := range f.datasets {
		if dataset.historyID == historyID {
			hid++
		}
	}

	dataset := &fakeDataset{
		Dataset: models.Dataset{
			ID:        f.nextID("ds-"),
			Name:      name,
			HID:       hid,
			Extension: extension,
			State:     models.JobStateOK,
			Type:      "dataset",
		},
		historyID: historyID,
		content:   content,
	}
	f.datasets = append(f.datasets, dataset)

	return dataset
}

func (f *FakeGalaxy) upload(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(32 << 20)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"err_msg": err.Error()})

		return
	}

	var inputs map[string]string

	err = json.Unmarshal([]byte(r.FormValue("inputs")), &inputs)
	if err != nil || r.FormValue("tool_id") != "upload1" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"err_msg": "bad upload request"})

		return
	}

	file, header, err := r.FormFile("files_0|file_data")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"err_msg": err.Error()})

		return
	}

	defer func() {
		_ = file.Close()
	}()

	content, _ := io.ReadAll(file)
	historyID := r.FormValue("history_id")

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.histories[historyID]; !ok {
		notFound(w)

		return
	}

	dataset := f.addDataset(historyID, inputs["files_0|NAME"], "txt", string(content))
	f.uploads = append(f.uploads, FakeUpload{
		HistoryID: historyID,
		Name:      inputs["files_0|NAME"],
		Filename:  header.Filename,
		Content:   string(content),
	})

	writeJSON(w, http.StatusOK, models.Upload{
		Outputs: []models.Dataset{dataset.Dataset},
		Jobs:    []models.Job{{ID: f.nextID("upload-job-"), State: models.JobStateQueued}},
	})
}

func (f *FakeGalaxy) invoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HistoryID string         `json:"history_id"`
		Inputs    map[string]any `json:"inputs"`
		InputsBy  string         `json:"inputs_by"`
	}

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"err_msg": err.Error()})

		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	workflowID := r.PathValue("id")
	if _, ok := f.exports[workflowID]; !ok {
		notFound(w)

		return
	}

	f.submissions = append(f.submissions, FakeSubmission{
		WorkflowID: workflowID,
		HistoryID:  body.HistoryID,
		InputsBy:   body.InputsBy,
		Inputs:     body.Inputs,
	})

	invocation := &models.Invocation{
		ID:         f.nextID("inv-"),
		WorkflowID: workflowID,
		HistoryID:  body.HistoryID,
		State:      models.InvocationStateNew,
	}
	f.invocations[invocation.ID] = invocation
	f.invocationPolls[invocation.ID] = f.PollsUntilDone

	for range f.JobsPerInvocation {
		job := &models.Job{ID: f.nextID("job-"), State: models.JobStateQueued}
		f.jobs[invocation.ID] = append(f.jobs[invocation.ID], job)
		f.jobPolls[job.ID] = f.PollsUntilDone
	}

	for _, output := range f.Outputs {
		f.addDataset(body.HistoryID, output.Name, output.Extension, output.Content)
	}

	writeJSON(w, http.StatusOK, invocation)
}

func (f *FakeGalaxy) listInvocations(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	workflowID := r.URL.Query().Get("workflow_id")
	invocations := []models.Invocation{}

	for _, invocation := range f.invocations {
		if workflowID == "" || invocation.WorkflowID == workflowID {
			invocations = append(invocations, *invocation)
		}
	}

	writeJSON(w, http.StatusOK, invocations)
}

func (f *FakeGalaxy) showInvocation(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	invocation, ok := f.invocations[r.PathValue("id")]
	if !ok {
		notFound(w)

		return
	}

	if !invocation.Terminal() {
		if f.invocationPolls[invocation.ID] > 0 {
			f.invocationPolls[invocation.ID]--
			invocation.State = models.InvocationStateReady
		} else {
			invocation.State = f.InvocationFinalState
		}
	}

	writeJSON(w, http.StatusOK, invocation)
}

func (f *FakeGalaxy) cancelInvocation(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	invocation, ok := f.invocations[r.PathValue("id")]
	if !ok {
		notFound(w)

		return
	}

	invocation.State = models.InvocationStateCancelled
	f.cancelled = append(f.cancelled, invocation.ID)

	writeJSON(w, http.StatusOK, invocation)
}

func (f *FakeGalaxy) bioCompute(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.invocations[r.PathValue("id")]; !ok {
		notFound(w)

		return
	}

	writeJSON(w, http.StatusOK, f.BioCompute)
}

func (f *FakeGalaxy) listJobs(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	jobs := []models.Job{}
	for _, job := range f.jobs[r.URL.Query().Get("invocation_id")] {
		jobs = append(jobs, *job)
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (f *FakeGalaxy) showJob(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	jobID := r.PathValue("id")

	for _, jobs := range f.jobs {
		for _, job := range jobs {
			if job.ID != jobID {
				continue
			}

			if !job.Terminal() {
				if f.jobPolls[jobID] > 0 {
					f.jobPolls[jobID]--
					job.State = models.JobStateRunning
				} else {
					job.State = f.JobFinalState
				}
			}

			writeJSON(w, http.StatusOK, job)

			return
		}
	}

	notFound(w)
}

func (f *FakeGalaxy) historyContents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	historyID := r.PathValue("id")
	if _, ok := f.histories[historyID]; !ok {
		notFound(w)

		return
	}

	contents := []map[string]any{}

	for _, dataset := range f.datasets {
		if dataset.historyID != historyID {
			continue
		}

		contents = append(contents, map[string]any{
			"id":                   dataset.ID,
			"name":                 dataset.Name,
			"hid":                  dataset.HID,
			"history_content_type": "dataset",
			"deleted":              false,
		})
	}

	writeJSON(w, http.StatusOK, contents)
}

func (f *FakeGalaxy) findDataset(id string) *fakeDataset {
	for _, dataset := range f.datasets {
		if dataset.ID == id {
			return dataset
		}
	}

	return nil
}

func (f *FakeGalaxy) showDataset(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dataset := f.findDataset(r.PathValue("id"))
	if dataset == nil {
		notFound(w)

		return
	}

	writeJSON(w, http.StatusOK, dataset.Dataset)
}

func (f *FakeGalaxy) displayDataset(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dataset := f.findDataset(r.PathValue("id"))
	if dataset == nil {
		notFound(w)

		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": dataset.DefaultFilename(),
	}))
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.WriteString(w, dataset.content)
}
