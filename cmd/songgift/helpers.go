package main

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/songgift/internal/observability/context"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 15 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// withComponents starts the core graph, fills the populate targets and runs fn
// against them. Background ticks and the HTTP server are not started.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context) error, targets ...any) error {
	role := "cli"
	if cmd.Name() == "migrate" {
		role = "migrate"
	}
	app := fx.New(coreModules(role), fx.Populate(targets...))
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := contextWithTimeout(app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(obscontext.WithActor(ctx, "cli"))
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
