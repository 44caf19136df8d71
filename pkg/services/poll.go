package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
)

var (
	errPending      = errors.New("not finished yet")
	errPollDeadline = errors.New("poll deadline exceeded")
)

// Poller waits for invocations and jobs to reach a terminal state, backing
// off exponentially between status requests.
type Poller struct {
	logger       *slog.Logger
	interval     time.Duration
	maxInterval  time.Duration
	timeout      time.Duration
	maxTransient int
}

func NewPoller(logger *slog.Logger, cfg config.Client) *Poller {
	return &Poller{
		logger:       logger.With("module", "poller"),
		interval:     cfg.PollInterval,
		maxInterval:  cfg.PollMaxInterval,
		timeout:      cfg.PollTimeout,
		maxTransient: cfg.MaxTransientErrors,
	}
}

// WaitForInvocation blocks until the invocation is terminal and returns its
// final record. A terminal state other than scheduled is an ErrExecution.
func (p *Poller) WaitForInvocation(ctx context.Context, api galaxy.API, invocationID string) (*models.Invocation, error) {
	const op = "wait for invocation"

	var invocation *models.Invocation

	err := p.poll(ctx, op, func(ctx context.Context) (bool, error) {
		current, err := api.ShowInvocation(ctx, invocationID)
		if err != nil {
			return false, err
		}

		invocation = current

		return current.Terminal(), nil
	})
	if err != nil {
		return invocation, err
	}

	if !invocation.Succeeded() {
		return invocation, newError(ErrExecution, op, "invocation "+invocationID+" ended in state "+invocation.State, nil)
	}

	return invocation, nil
}

// WaitForJobs blocks until every job spawned by the invocation is terminal.
// Any job ending in a state other than ok is an ErrExecution.
func (p *Poller) WaitForJobs(ctx context.Context, api galaxy.API, invocationID string) ([]models.Job, error) {
	const op = "wait for jobs"

	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	var jobs []models.Job

	err := p.poll(ctx, op, func(ctx context.Context) (bool, error) {
		listed, err := api.ListJobs(ctx, invocationID)
		if err != nil {
			return false, err
		}

		jobs = listed

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	finished := make([]models.Job, 0, len(jobs))

	for _, job := range jobs {
		done, err := p.WaitForJob(ctx, api, job.ID)
		if err != nil {
			return finished, err
		}

		finished = append(finished, *done)
	}

	return finished, nil
}

// WaitForJob blocks until the job is terminal.
func (p *Poller) WaitForJob(ctx context.Context, api galaxy.API, jobID string) (*models.Job, error) {
	const op = "wait for job"

	var job *models.Job

	err := p.poll(ctx, op, func(ctx context.Context) (bool, error) {
		current, err := api.ShowJob(ctx, jobID)
		if err != nil {
			return false, err
		}

		job = current

		return current.Terminal(), nil
	})
	if err != nil {
		return job, err
	}

	if !job.Succeeded() {
		return job, newError(ErrExecution, op, "job "+jobID+" ended in state "+job.State, nil)
	}

	return job, nil
}

// withDeadline applies the stage timeout. Nested stages keep the outer
// deadline since the cause propagates to child contexts.
func (p *Poller) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeoutCause(ctx, p.timeout, errPollDeadline)
}

func (p *Poller) poll(ctx context.Context, op string, check func(ctx context.Context) (bool, error)) error {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	exponential := &backoff.ExponentialBackOff{
		InitialInterval:     p.interval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         p.maxInterval,
	}

	transient := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		done, err := check(ctx)
		if err != nil {
			if context.Cause(ctx) != nil {
				return struct{}{}, backoff.Permanent(context.Cause(ctx))
			}

			if galaxy.IsUnauthorized(err) || galaxy.IsNotFound(err) {
				return struct{}{}, backoff.Permanent(err)
			}

			transient++
			if transient > p.maxTransient {
				return struct{}{}, backoff.Permanent(err)
			}

			p.logger.Warn("Status request failed, retrying", "op", op, "attempt", transient, "error", err)

			return struct{}{}, err
		}

		transient = 0

		if !done {
			return struct{}{}, errPending
		}

		return struct{}{}, nil
	}, backoff.WithBackOff(exponential), backoff.WithMaxElapsedTime(0))

	return pollError(op, err)
}

func pollError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errPollDeadline):
		return newError(ErrPollTimeout, op, "", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrCancelled, op, "", err)
	default:
		return remoteError(op, err)
	}
}
