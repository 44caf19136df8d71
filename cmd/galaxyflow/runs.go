package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/mcfe/galaxyflow/pkg/janitor"
	cli "github.com/urfave/cli/v3"
)

func NewRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded launches, newest first",
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, runtimeNeeds{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			runs, err := rt.store.Runs(ctx)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tWORKFLOW\tSTATE\tHISTORY\tCLEANED\tCREATED")

			for _, run := range runs {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\t%s\n",
					run.ID, run.WorkflowName, run.State, run.HistoryID, run.Cleaned,
					run.CreatedAt.Local().Format(time.DateTime))
			}

			return writer.Flush()
		},
	}
}

func NewCleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete histories left behind by aborted, cancelled or abandoned launches",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "stale-after",
				Usage: "Treat unfinished launches idle for this long as abandoned",
				Value: janitor.DefaultStaleAfter,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, runtimeNeeds{store: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			sweeper := janitor.New(rt.logger, rt.store, rt.connector(), rt.credential,
				janitor.WithStaleAfter(command.Duration("stale-after")),
				janitor.WithPurge(rt.cfg.PurgeHistories),
			)

			report, err := sweeper.Sweep(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "cleaned %d, skipped %d, failed %d\n",
				len(report.Cleaned), len(report.Skipped), len(report.Failed))
			if err != nil {
				return err
			}

			if len(report.Failed) > 0 {
				return fmt.Errorf("%d histories could not be deleted", len(report.Failed))
			}

			return nil
		},
	}
}
