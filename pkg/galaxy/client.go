package galaxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcfe/galaxyflow/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiKeyHeader   = "x-api-key"
	uploadToolID   = "upload1"
	maxErrorBody   = 512
	defaultTimeout = 60 * time.Second
)

// Client talks to one Galaxy server with one API key.
type Client struct {
	baseURL    *url.URL
	key        string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the traced default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every request, including uploads and downloads.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// ParseAddress parses a server address that already carries an http(s) scheme.
func ParseAddress(address string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, parsed.Scheme)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed, nil
}

// NewClient creates a client for address, which must include its scheme.
func NewClient(address, key string, opts ...Option) (*Client, error) {
	baseURL, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	client := &Client{
		baseURL: baseURL,
		key:     key,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := c.baseURL.JoinPath(append([]string{"api"}, segments...)...)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}

	if c.key != "" {
		req.Header.Set(apiKeyHeader, c.key)
	}

	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("galaxy: %s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() {
			_ = resp.Body.Close()
		}()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, &APIError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		body = strings.NewReader(string(payload))
	}

	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}

	return nil
}

// Version probes the server without credentials.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Major string `json:"version_major"`
		Minor string `json:"version_minor"`
	}

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "version"), nil, &version)
	if err != nil {
		return "", err
	}

	if version.Minor != "" {
		return version.Major + "." + version.Minor, nil
	}

	return version.Major, nil
}

func (c *Client) ListWorkflows(ctx context.Context) ([]models.WorkflowSummary, error) {
	var workflows []models.WorkflowSummary

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "workflows"), nil, &workflows)
	if err != nil {
		return nil, err
	}

	return workflows, nil
}

// ExportWorkflow downloads the step graph of a workflow in export style.
func (c *Client) ExportWorkflow(ctx context.Context, workflowID string) (*models.WorkflowExport, error) {
	var export models.WorkflowExport

	query := url.Values{"style": []string{"export"}}

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(query, "workflows", workflowID, "download"), nil, &export)
	if err != nil {
		return nil, err
	}

	return &export, nil
}

func (c *Client) CreateHistory(ctx context.Context, name string) (*models.History, error) {
	var history models.History

	err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, "histories"), map[string]string{"name": name}, &history)
	if err != nil {
		return nil, err
	}

	return &history, nil
}

func (c *Client) DeleteHistory(ctx context.Context, historyID string, purge bool) error {
	var query url.Values
	if purge {
		query = url.Values{"purge": []string{"true"}}
	}

	return c.doJSON(ctx, http.MethodDelete, c.endpoint(query, "histories", historyID), nil, nil)
}

// UploadFile streams a local file into a history through the upload tool.
// name is the dataset name shown by the server.
func (c *Client) UploadFile(ctx context.Context, historyID, path, name string) (*models.Upload, error) {
	file, err := os.Open(path) // #nosec G304 -- caller-selected input file
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	toolInputs, err := json.Marshal(map[string]string{
		"files_0|NAME": name,
		"files_0|type": "upload_dataset",
		"dbkey":        "?",
		"file_type":    "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload inputs: %w", err)
	}

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)

	go func() {
		writer.CloseWithError(writeUploadForm(form, historyID, string(toolInputs), name, file))
	}()

	defer func() {
		_ = reader.Close()
	}()

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(nil, "tools"), reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	var upload models.Upload

	err = json.NewDecoder(resp.Body).Decode(&upload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}

	if len(upload.Outputs) == 0 {
		return nil, fmt.Errorf("upload of %s produced no datasets", name)
	}

	return &upload, nil
}

func writeUploadForm(form *multipart.Writer, historyID, toolInputs, name string, content io.Reader) error {
	fields := [][2]string{
		{"tool_id", uploadToolID},
		{"history_id", historyID},
		{"inputs", toolInputs},
	}

	for _, field := range fields {
		err := form.WriteField(field[0], field[1])
		if err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("files_0|file_data", name)
	if err != nil {
		return err
	}

	_, err = io.Copy(part, content)
	if err != nil {
		return err
	}

	return form.Close()
}

// InvokeWorkflow runs a workflow in a history. inputs are keyed by step index.
func (c *Client) InvokeWorkflow(
	ctx context.Context,
	workflowID, historyID string,
	inputs map[string]any,
) (*models.Invocation, error) {
	payload := map[string]any{
		"history_id": historyID,
		"inputs":     inputs,
		"inputs_by":  "step_index",
	}

	var invocation models.Invocation

	err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, "workflows", workflowID, "invocations"), payload, &invocation)
	if err != nil {
		return nil, err
	}

	return &invocation, nil
}

func (c *Client) ListInvocations(ctx context.Context, workflowID string) ([]models.Invocation, error) {
	var invocations []models.Invocation

	query := url.Values{"workflow_id": []string{workflowID}}

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(query, "invocations"), nil, &invocations)
	if err != nil {
		return nil, err
	}

	return invocations, nil
}

func (c *Client) ShowInvocation(ctx context.Context, invocationID string) (*models.Invocation, error) {
	var invocation models.Invocation

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "invocations", invocationID), nil, &invocation)
	if err != nil {
		return nil, err
	}

	return &invocation, nil
}

func (c *Client) CancelInvocation(ctx context.Context, invocationID string) error {
	return c.doJSON(ctx, http.MethodDelete, c.endpoint(nil, "invocations", invocationID), nil, nil)
}

// InvocationBioCompute fetches the BioCompute Object describing an invocation.
func (c *Client) InvocationBioCompute(ctx context.Context, invocationID string) (json.RawMessage, error) {
	var report json.RawMessage

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "invocations", invocationID, "biocompute"), nil, &report)
	if err != nil {
		return nil, err
	}

	return report, nil
}

func (c *Client) ListJobs(ctx context.Context, invocationID string) ([]models.Job, error) {
	var jobs []models.Job

	query := url.Values{"invocation_id": []string{invocationID}}

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(query, "jobs"), nil, &jobs)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (c *Client) ShowJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "jobs", jobID), nil, &job)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// ListHistoryDatasets lists the non-deleted datasets of a history.
func (c *Client) ListHistoryDatasets(ctx context.Context, historyID string) ([]models.Dataset, error) {
	var contents []models.Dataset

	query := url.Values{
		"types":   []string{"dataset"},
		"deleted": []string{"false"},
	}

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(query, "histories", historyID, "contents"), nil, &contents)
	if err != nil {
		return nil, err
	}

	datasets := make([]models.Dataset, 0, len(contents))

	for _, item := range contents {
		if item.Deleted || (item.Type != "" && item.Type != "dataset") {
			continue
		}

		datasets = append(datasets, item)
	}

	return datasets, nil
}

func (c *Client) ShowDataset(ctx context.Context, datasetID string) (*models.Dataset, error) {
	var dataset models.Dataset

	err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "datasets", datasetID), nil, &dataset)
	if err != nil {
		return nil, err
	}

	return &dataset, nil
}

// DownloadDataset writes a dataset into dir under the server's default
// filename and returns the written path.
func (c *Client) DownloadDataset(ctx context.Context, dataset models.Dataset, dir string) (string, error) {
	var query url.Values
	if dataset.Extension != "" {
		query = url.Values{"to_ext": []string{dataset.Extension}}
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(query, "datasets", dataset.ID, "display"), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.send(req)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	filename := attachmentFilename(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = dataset.DefaultFilename()
	}

	target := filepath.Join(dir, filename)

	out, err := os.Create(target) // #nosec G304 -- base name only, joined to the staging dir
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}

	_, err = io.Copy(out, resp.Body)
	if err != nil {
		_ = out.Close()

		return "", fmt.Errorf("failed to download dataset %s: %w", dataset.ID, err)
	}

	err = out.Close()
	if err != nil {
		return "", fmt.Errorf("failed to close %s: %w", target, err)
	}

	return target, nil
}

func attachmentFilename(disposition string) string {
	if disposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}

	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	return name
}
