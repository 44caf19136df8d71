package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"
)

var (
	ErrWorkflowRequired = errors.New("a workflow name is required")
	ErrCheckFailed      = errors.New("check failed")
)

func NewCheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check the credential, and the workflow when one is named",
		ArgsUsage: "[workflow name]",
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, runtimeNeeds{})
			if err != nil {
				return err
			}
			defer rt.Close()

			name := command.Args().First()

			var valid bool
			if name == "" {
				valid = rt.connector().Validate(ctx, rt.credential)
			} else {
				valid = rt.introspector().CheckWorkflow(ctx, rt.credential, name)
			}

			if !valid {
				return ErrCheckFailed
			}

			_, err = fmt.Fprintln(command.Root().Writer, "ok")

			return err
		},
	}
}

func NewWorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflows",
		Aliases: []string{"ls"},
		Usage:   "List the workflows visible to the API key",
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, runtimeNeeds{})
			if err != nil {
				return err
			}
			defer rt.Close()

			names, err := rt.introspector().ListWorkflows(ctx, rt.credential)
			if err != nil {
				return err
			}

			for _, name := range names {
				_, err = fmt.Fprintln(command.Root().Writer, name)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func NewInputsCommand() *cli.Command {
	return &cli.Command{
		Name:      "inputs",
		Usage:     "List the inputs a workflow expects",
		ArgsUsage: "<workflow name>",
		Action: func(ctx context.Context, command *cli.Command) error {
			name := command.Args().First()
			if name == "" {
				return ErrWorkflowRequired
			}

			rt, err := newRuntime(ctx, command, runtimeNeeds{})
			if err != nil {
				return err
			}
			defer rt.Close()

			slots, err := rt.introspector().Inputs(ctx, rt.credential, name)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "NAME\tKIND\tSTEP")

			for _, slot := range slots {
				fmt.Fprintf(writer, "%s\t%s\t%d\n", slot.Name, slot.Kind, slot.StepID)
			}

			return writer.Flush()
		},
	}
}

func NewOutputsCommand() *cli.Command {
	return &cli.Command{
		Name:      "outputs",
		Usage:     "List the outputs a workflow produces",
		ArgsUsage: "<workflow name>",
		Action: func(ctx context.Context, command *cli.Command) error {
			name := command.Args().First()
			if name == "" {
				return ErrWorkflowRequired
			}

			rt, err := newRuntime(ctx, command, runtimeNeeds{})
			if err != nil {
				return err
			}
			defer rt.Close()

			outputs, err := rt.introspector().Outputs(ctx, rt.credential, name)
			if err != nil {
				return err
			}

			for _, output := range outputs {
				_, err = fmt.Fprintln(command.Root().Writer, output)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}
