package main

import (
	"github.com/mcfe/galaxyflow/pkg/config"
	cli "github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	defaults := config.Default()

	return &cli.Command{
		Name:                  "galaxyflow",
		Usage:                 "Validate, inspect and launch workflows on a Galaxy server",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewCheckCommand(),
			NewWorkflowsCommand(),
			NewInputsCommand(),
			NewOutputsCommand(),
			NewLaunchCommand(),
			NewRunsCommand(),
			NewCleanupCommand(),
			NewServeCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Galaxy server address, with or without scheme",
				Sources: cli.EnvVars("GALAXY_SERVER"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Galaxy API key",
				Sources: cli.EnvVars("GALAXY_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run store URL (directory, file://, postgres://, redis://)",
				Value:   "./.galaxyflow",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Lifecycle event bus (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "First wait between status requests",
				Value:   defaults.PollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "poll-max-interval",
				Usage:   "Longest wait between status requests",
				Value:   defaults.PollMaxInterval,
				Sources: cli.EnvVars("POLL_MAX_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "poll-timeout",
				Usage:   "Limit for each polling stage, 0 waits forever",
				Value:   defaults.PollTimeout,
				Sources: cli.EnvVars("POLL_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "heartbeat-interval",
				Usage:   "How often a polling launch refreshes its run record, 0 disables it",
				Value:   defaults.HeartbeatInterval,
				Sources: cli.EnvVars("HEARTBEAT_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "request-timeout",
				Usage:   "Limit for a single HTTP request",
				Value:   defaults.RequestTimeout,
				Sources: cli.EnvVars("REQUEST_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "staging-dir",
				Usage:   "Directory receiving harvested histories",
				Value:   defaults.StagingRoot,
				Sources: cli.EnvVars("STAGING_DIR"),
			},
			&cli.StringFlag{
				Name:    "scratch-dir",
				Usage:   "Directory for temporary upload files",
				Value:   defaults.ScratchRoot,
				Sources: cli.EnvVars("SCRATCH_DIR"),
			},
			&cli.BoolFlag{
				Name:    "purge",
				Usage:   "Purge deleted histories",
				Value:   defaults.PurgeHistories,
				Sources: cli.EnvVars("PURGE_HISTORIES"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
	}
}

func clientConfig(command *cli.Command) config.Client {
	cfg := config.Default()
	cfg.PollInterval = command.Duration("poll-interval")
	cfg.PollMaxInterval = command.Duration("poll-max-interval")
	cfg.PollTimeout = command.Duration("poll-timeout")
	cfg.HeartbeatInterval = command.Duration("heartbeat-interval")
	cfg.RequestTimeout = command.Duration("request-timeout")
	cfg.StagingRoot = command.String("staging-dir")
	cfg.ScratchRoot = command.String("scratch-dir")
	cfg.PurgeHistories = command.Bool("purge")

	return cfg
}
