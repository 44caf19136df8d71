// Package redis provides a run store backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const (
	runKeyPrefix = "galaxyflow:run:"
	runIndexKey  = "galaxyflow:runs"
)

// Persistence keeps each run as a JSON string plus a sorted set ordered by
// creation time.
type Persistence struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

var _ persistence.RunStore = (*Persistence)(nil)

// NewPersistence connects to a redis:// or rediss:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(logger, client), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(logger *slog.Logger, client goredis.UniversalClient) *Persistence {
	return &Persistence{client: client, logger: logger.With("module", "redis_persistence")}
}

func runKey(id string) string {
	return runKeyPrefix + id
}

func (p *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		return persistence.NewRunError("save", run.ID, persistence.ErrInvalidRunID)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, runKey(run.ID), data, 0)
		pipe.ZAdd(ctx, runIndexKey, goredis.Z{
			Score:  float64(run.CreatedAt.UnixMilli()),
			Member: run.ID,
		})

		return nil
	})
	if err != nil {
		return persistence.NewRunError("save", run.ID, err)
	}

	return nil
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	if id == "" {
		return nil, persistence.NewRunError("get", id, persistence.ErrInvalidRunID)
	}

	data, err := p.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewRunError("get", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("get", id, err)
	}

	var run models.Run

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, persistence.NewRunError("get", id, err)
	}

	return &run, nil
}

func (p *Persistence) Runs(ctx context.Context) ([]*models.Run, error) {
	ids, err := p.client.ZRevRange(ctx, runIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	runs := make([]*models.Run, 0, len(ids))
	if len(ids) == 0 {
		return runs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry outlived its document
			p.logger.WarnContext(ctx, "run missing from index", "run_id", ids[i])

			continue
		}

		var run models.Run

		err = json.Unmarshal([]byte(raw), &run)
		if err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", ids[i], err)
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

func (p *Persistence) DeleteRun(ctx context.Context, id string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, runKey(id))
		pipe.ZRem(ctx, runIndexKey, id)

		return nil
	})
	if err != nil {
		return persistence.NewRunError("delete", id, err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
