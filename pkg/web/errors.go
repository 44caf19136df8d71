package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"github.com/mcfe/galaxyflow/pkg/services"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps an error kind from the launch pipeline to a problem response.
func handleServiceError(c fiber.Ctx, err error) error {
	var (
		status      int
		problemType string
	)

	switch {
	case persistence.IsRunNotFound(err):
		return notFound(c, "run not found")
	case errors.Is(err, services.ErrConfig):
		status, problemType = fiber.StatusBadRequest, "config_error"
	case errors.Is(err, services.ErrAuth):
		status, problemType = fiber.StatusUnauthorized, "auth_error"
	case errors.Is(err, services.ErrConnectivity):
		status, problemType = fiber.StatusBadGateway, "connectivity_error"
	case errors.Is(err, services.ErrResolution):
		status, problemType = fiber.StatusNotFound, "workflow_not_found"
	case errors.Is(err, services.ErrContractMismatch):
		status, problemType = fiber.StatusUnprocessableEntity, "contract_mismatch"
	case errors.Is(err, services.ErrRemote):
		status, problemType = fiber.StatusBadGateway, "remote_error"
	case errors.Is(err, services.ErrPollTimeout):
		status, problemType = fiber.StatusGatewayTimeout, "poll_timeout"
	case errors.Is(err, services.ErrCancelled):
		status, problemType = fiber.StatusServiceUnavailable, "cancelled"
	default:
		return internalError(c, err)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
