package main

import (
	"github.com/smallbiznis/songgift/internal/migration"
	"github.com/smallbiznis/songgift/internal/scheduler"
	"github.com/smallbiznis/songgift/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCommand() *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				coreModules("serve"),
				migration.Module,
				server.Module,
			}
			if !noWorker {
				opts = append(opts, scheduler.Runner)
			}
			return runApp(cmd, fx.New(opts...))
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Serve HTTP only; run ticks in a separate worker process")
	return cmd
}

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the generation and delivery ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, fx.New(
				coreModules("worker"),
				migration.Module,
				scheduler.Runner,
			))
		},
	}
}

// runApp starts the app and blocks until a signal or the command context ends.
func runApp(cmd *cobra.Command, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}

	select {
	case <-app.Done():
	case <-ctx.Done():
	}

	stopCtx, cancel := contextWithTimeout(app.StopTimeout())
	defer cancel()
	return app.Stop(stopCtx)
}
