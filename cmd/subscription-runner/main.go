// Command subscription-runner processes all due subscription templates once
// and exits. Intended to run on a schedule (cron or similar).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/farmstand/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("subscription run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	created, failed, err := app.RunSubscriptions(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("subscription run finished", slog.Int("created", created), slog.Int("failed", failed))
	return nil
}
