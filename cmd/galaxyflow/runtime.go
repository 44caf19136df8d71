package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcfe/galaxyflow/pkg/cmd"
	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/eventbus"
	"github.com/mcfe/galaxyflow/pkg/log"
	"github.com/mcfe/galaxyflow/pkg/models"
	"github.com/mcfe/galaxyflow/pkg/otelhelper"
	"github.com/mcfe/galaxyflow/pkg/persistence"
	"github.com/mcfe/galaxyflow/pkg/services"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// shutdownTimeout bounds flushing spans and closing stores on exit.
const shutdownTimeout = 10 * time.Second

// runtime holds what a command needs, built from the global flags.
type runtime struct {
	logger     *slog.Logger
	cfg        config.Client
	credential models.Credential
	store      persistence.RunStore
	bus        eventbus.EventBus
	tracer     trace.Tracer
	shutdown   otelhelper.ShutdownFunc
}

type runtimeNeeds struct {
	store bool
	bus   bool
}

func newRuntime(ctx context.Context, command *cli.Command, needs runtimeNeeds) (*runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	rt := &runtime{
		logger: log.WithModule("galaxyflow"),
		cfg:    clientConfig(command),
		credential: models.Credential{
			Address: command.String("server"),
			Key:     command.String("api-key"),
		},
		tracer: otelhelper.NoopTracer(),
	}

	err := rt.cfg.Validate()
	if err != nil {
		return nil, err
	}

	if command.Bool("otel") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "galaxyflow")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.tracer = tracer
		rt.shutdown = shutdown
	}

	if needs.store {
		rt.store, err = cmd.NewPersistence(ctx, rt.logger, command.String("database-url"))
		if err != nil {
			rt.Close()

			return nil, err
		}
	}

	if needs.bus {
		rt.bus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), rt.logger)
		if err != nil {
			rt.Close()

			return nil, err
		}
	}

	return rt, nil
}

func (rt *runtime) connector() *services.Connector {
	return services.NewConnector(rt.logger, rt.cfg)
}

func (rt *runtime) introspector() *services.Introspector {
	return services.NewIntrospector(rt.logger, rt.connector())
}

func (rt *runtime) launcher() *services.Launcher {
	opts := []services.LauncherOption{
		services.WithConnector(rt.connector()),
		services.WithTracer(rt.tracer),
	}

	if rt.store != nil {
		opts = append(opts, services.WithRunStore(rt.store))
	}

	if rt.bus != nil {
		opts = append(opts, services.WithEventPublisher(rt.bus))
	}

	return services.NewLauncher(rt.logger, rt.cfg, opts...)
}

// Close releases everything newRuntime opened. It uses its own context so
// it still works after the command context was cancelled.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if rt.bus != nil {
		err := rt.bus.Close()
		if err != nil {
			rt.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if rt.store != nil {
		err := rt.store.Close(ctx)
		if err != nil {
			rt.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	if rt.shutdown != nil {
		err := rt.shutdown(ctx)
		if err != nil {
			rt.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
