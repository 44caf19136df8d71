// Package web provides HTTP handlers exposing the launch pipeline to callers
// that cannot block on a launch, such as desktop front ends.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"github.com/mcfe/galaxyflow/pkg/services"
)

type APIHandlers struct {
	logger       *slog.Logger
	connector    *services.Connector
	introspector *services.Introspector
	launcher     *services.Launcher
	runs         persistence.RunStore
	validator    *validator.Validate
	defaults     models.Credential

	// launches outlive their request and stop with ctx
	ctx      context.Context
	launches sync.WaitGroup
}

func NewAPIHandlers(
	ctx context.Context,
	logger *slog.Logger,
	connector *services.Connector,
	launcher *services.Launcher,
	runs persistence.RunStore,
	validator *validator.Validate,
	defaults models.Credential,
) *APIHandlers {
	logger = logger.With("module", "web")

	return &APIHandlers{
		logger:       logger,
		connector:    connector,
		introspector: services.NewIntrospector(logger, connector),
		launcher:     launcher,
		runs:         runs,
		validator:    validator,
		defaults:     defaults,
		ctx:          ctx,
	}
}

// Wait blocks until every background launch has returned.
func (h *APIHandlers) Wait() {
	h.launches.Wait()
}

// credential takes the server and key from request headers, falling back to
// the configured defaults field by field.
func (h *APIHandlers) credential(c fiber.Ctx) models.Credential {
	credential := h.defaults

	if server := strings.TrimSpace(c.Get(ServerHeader)); server != "" {
		credential.Address = strings.Clone(server)
	}

	if key := strings.TrimSpace(c.Get(APIKeyHeader)); key != "" {
		credential.Key = strings.Clone(key)
	}

	return credential
}

// workflowName decodes the :name parameter. Fiber reuses parameter memory
// after the handler returns, so the result is a copy.
func workflowName(c fiber.Ctx) (string, error) {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return "", err
	}

	return strings.Clone(name), nil
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	names, err := h.introspector.ListWorkflows(c.Context(), h.credential(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(WorkflowsResponse{Workflows: names})
}

func (h *APIHandlers) GetWorkflowInputs(c fiber.Ctx) error {
	name, err := workflowName(c)
	if err != nil || name == "" {
		return badRequest(c, "Workflow name is required")
	}

	slots, err := h.introspector.Inputs(c.Context(), h.credential(c), name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(InputsResponse{Workflow: name, Inputs: slots})
}

func (h *APIHandlers) GetWorkflowOutputs(c fiber.Ctx) error {
	name, err := workflowName(c)
	if err != nil || name == "" {
		return badRequest(c, "Workflow name is required")
	}

	outputs, err := h.introspector.Outputs(c.Context(), h.credential(c), name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(OutputsResponse{Workflow: name, Outputs: outputs})
}

// Check answers with a boolean whatever the failure, like the blocking
// check functions it wraps.
func (h *APIHandlers) Check(c fiber.Ctx) error {
	var req CheckRequest

	if len(c.Body()) > 0 {
		err := c.Bind().JSON(&req)
		if err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	credential := h.credential(c)

	if req.WorkflowName == "" {
		return c.JSON(CheckResponse{Valid: h.connector.Validate(c.Context(), credential)})
	}

	return c.JSON(CheckResponse{Valid: h.introspector.CheckWorkflow(c.Context(), credential, req.WorkflowName)})
}

// CreateLaunch records the run and starts it in the background. The
// response carries the run id to poll with GetRun.
func (h *APIHandlers) CreateLaunch(c fiber.Ctx) error {
	name, err := workflowName(c)
	if err != nil || name == "" {
		return badRequest(c, "Workflow name is required")
	}

	var body LaunchRequest

	err = c.Bind().JSON(&body)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(body)
	if err != nil {
		return badRequest(c, err.Error())
	}

	req := body.toService(h.credential(c), name)
	run := services.NewRun(req)
	run.State = models.LaunchStateValidating

	err = h.runs.SaveRun(c.Context(), run)
	if err != nil {
		return internalError(c, err)
	}

	response := LaunchResponse{RunID: run.ID, HistoryName: run.HistoryName, State: run.State}

	h.launches.Add(1)

	go func() {
		defer h.launches.Done()

		outcome := h.launcher.LaunchRun(h.ctx, run, req)
		h.logger.InfoContext(h.ctx, "Background launch returned",
			"run_id", run.ID,
			"succeeded", services.Succeeded(outcome),
		)
	}()

	return c.Status(fiber.StatusAccepted).JSON(response)
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	runs, err := h.runs.Runs(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	response := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, TransformRunResponse(run))
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runs.RunByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformRunResponse(run))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "galaxyflow API is healthy"
	httpStatus := http.StatusOK
	runStore := "ok"

	err := h.runs.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "galaxyflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		runStore = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"run_store": runStore,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Register mounts the handlers on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Post("/check", h.Check)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Get("/:name/inputs", h.GetWorkflowInputs)
	w.Get("/:name/outputs", h.GetWorkflowOutputs)
	w.Post("/:name/launches", h.CreateLaunch)

	r := router.Group("/runs")
	r.Get("/", h.GetRuns)
	r.Get("/:id", h.GetRun)
}
