package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/eventbus"
	"github.com/mcfe/galaxyflow/pkg/events"
	"github.com/mcfe/galaxyflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewLaunchCommand() *cli.Command {
	return &cli.Command{
		Name:      "launch",
		Usage:     "Upload inputs, invoke a workflow and wait for it to finish",
		ArgsUsage: "<workflow name>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Input value as name=value; file paths are uploaded, other values are sent inline",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Launch file (YAML or JSON) with server, api_key, workflow_name, inputs, uid and harvest",
			},
			&cli.StringFlag{
				Name:  "uid",
				Usage: "Execution id used in the history name (random when empty)",
			},
			&cli.BoolFlag{
				Name:  "harvest",
				Usage: "Download the history to the staging directory and delete it",
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

			req, err := launchRequest(command, rt)
			if err != nil {
				return err
			}

			run := services.NewRun(req)

			if rt.bus != nil {
				err = followProgress(ctx, rt, run.ID)
				if err != nil {
					return err
				}
			}

			outcome := rt.launcher().LaunchRun(ctx, run, req)

			return reportOutcome(command, outcome)
		},
	}
}

// launchRequest merges the launch file, when given, with the command line.
// Explicitly set flags win over the file.
func launchRequest(command *cli.Command, rt *runtime) (services.LaunchRequest, error) {
	req := services.LaunchRequest{
		Credential:   rt.credential,
		WorkflowName: command.Args().First(),
		Inputs:       map[string]any{},
		ExecutionID:  command.String("uid"),
		Harvest:      command.Bool("harvest"),
	}

	if path := command.String("config"); path != "" {
		file, err := config.LoadLaunchFile(path)
		if err != nil {
			return req, err
		}

		if !command.IsSet("server") {
			req.Credential.Address = file.Server
		}

		if !command.IsSet("api-key") {
			req.Credential.Key = file.APIKey
		}

		if req.WorkflowName == "" {
			req.WorkflowName = file.WorkflowName
		}

		if !command.IsSet("uid") {
			req.ExecutionID = file.UID
		}

		if !command.IsSet("harvest") {
			req.Harvest = file.Harvest
		}

		for name, value := range file.Inputs {
			req.Inputs[name] = value
		}
	}

	inputs, err := parseInputs(command.StringSlice("input"))
	if err != nil {
		return req, err
	}

	for name, value := range inputs {
		req.Inputs[name] = value
	}

	if req.WorkflowName == "" {
		return req, ErrWorkflowRequired
	}

	return req, nil
}

// parseInputs reads name=value pairs. The value may contain '='.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")

		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf("%w: input %q is not name=value", config.ErrInvalid, pair)
		}

		inputs[name] = value
	}

	return inputs, nil
}

// followProgress logs the transitions of runID. A shared bus also carries
// the events of other launches, which are ignored.
func followProgress(ctx context.Context, rt *runtime, runID string) error {
	err := rt.bus.Handle(events.LaunchStateChangedEvent, progressHandler(rt.logger, runID))
	if err != nil {
		return err
	}

	return rt.bus.Subscribe(ctx)
}

func progressHandler(logger *slog.Logger, runID string) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		changed, ok := event.(*events.LaunchStateChanged)
		if !ok || changed.RunID != runID {
			return nil
		}

		logger.InfoContext(ctx, "Launch progress", "run_id", changed.RunID, "from", changed.From, "to", changed.To)

		return nil
	}
}

func reportOutcome(command *cli.Command, outcome services.Outcome) error {
	run := outcome.Record()
	w := command.Root().Writer

	switch o := outcome.(type) {
	case services.Failed:
		return fmt.Errorf("launch %s stopped in state %s: %w", run.ID, run.State, o.Err)
	case services.LaunchedWithArtifacts:
		_, err := fmt.Fprintf(w, "run %s finished, history %q harvested to %s\n", run.ID, run.HistoryName, o.StagingDir)

		return err
	default:
		_, err := fmt.Fprintf(w, "run %s finished, history %q (%s) invocation %s\n",
			run.ID, run.HistoryName, run.HistoryID, run.InvocationID)

		return err
	}
}
