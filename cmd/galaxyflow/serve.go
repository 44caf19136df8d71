package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/mcfe/galaxyflow/pkg/janitor"
	"github.com/mcfe/galaxyflow/pkg/services"
	"github.com/mcfe/galaxyflow/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

type API struct {
	logger   *slog.Logger
	handlers *web.APIHandlers
}

func NewAPI(ctx context.Context, rt *runtime, launcher *services.Launcher) *API {
	return &API{
		logger: rt.logger,
		handlers: web.NewAPIHandlers(
			ctx,
			rt.logger,
			rt.connector(),
			launcher,
			rt.store,
			validator.New(validator.WithRequiredStructEnabled()),
			rt.credential,
		),
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("galaxyflow API")
	})

	a.handlers.Register(app)

	return app
}

// Start serves until ctx is done, then waits for background launches.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	a.logger.InfoContext(ctx, "galaxyflow API listening", "port", port)

	err := app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
		GracefulContext:       ctx,
		ShutdownTimeout:       shutdownTimeout,
		DisableStartupMessage: true,
	})

	a.handlers.Wait()

	return err
}

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the launch API over HTTP for callers that cannot block",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "cleanup-schedule",
				Usage:   "Cron schedule for deleting orphaned histories, empty disables it",
				Value:   "@every 1h",
				Sources: cli.EnvVars("CLEANUP_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:  "stale-after",
				Usage: "Treat unfinished launches idle for this long as abandoned",
				Value: janitor.DefaultStaleAfter,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, runtimeNeeds{store: true, bus: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			err = rt.cfg.EnsureDirs()
			if err != nil {
				return err
			}

			rt.logger.InfoContext(ctx, "Initializing galaxyflow API")

			launcher := rt.launcher()

			if schedule := command.String("cleanup-schedule"); schedule != "" {
				sweeper := janitor.New(rt.logger, rt.store, rt.connector(), rt.credential,
					janitor.WithStaleAfter(command.Duration("stale-after")),
					janitor.WithPurge(rt.cfg.PurgeHistories),
					janitor.WithActiveRuns(launcher),
				)

				err = sweeper.Start(ctx, schedule)
				if err != nil {
					return fmt.Errorf("failed to start janitor: %w", err)
				}
				defer sweeper.Stop()
			}

			err = NewAPI(ctx, rt, launcher).Start(ctx, command.Int("port"))
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}
}
