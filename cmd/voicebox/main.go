package main

import (
	"context"

	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	"voicebox/internal/prometheus"
	"voicebox/internal/voicebox"
)

func main() {
	err := config.Validate()
	if err != nil {
		logging.Logger.Fatal("invalid configuration", zap.String("error", err.Error()))
	}

	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		app, err := voicebox.NewApp(cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create voicebox app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		app.HealthCheckerService.Check()

		cancel()
	}
}
