package main

import (
	"context"
	"flag"
	"log"

	"github.com/xentelar/kflow/pkg/config"
	telemetrywriter "github.com/xentelar/kflow/pkg/consumers/telemetry-writer"
	"github.com/xentelar/kflow/pkg/lifecycle"
	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/sink/postgres"
)

func main() {
	configPath := flag.String("config", "/etc/kflow/telemetry-writer.json", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	bootstrapLogger, err := logger.New(ctx, logger.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var cfg telemetrywriter.TelemetryWriterConfig

	cfgLoader := config.NewConfig(bootstrapLogger)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	loggerConfig := cfg.Logging
	if loggerConfig == nil {
		loggerConfig = logger.DefaultConfig()
	}

	serviceLogger, err := logger.New(ctx, loggerConfig)
	if err != nil {
		log.Fatalf("Failed to initialize service logger: %v", err)
	}

	store, err := postgres.New(ctx, cfg.Database, serviceLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	svc, err := telemetrywriter.NewService(&cfg, store, serviceLogger)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry writer: %v", err)
	}

	if err := lifecycle.Run(ctx, svc, serviceLogger); err != nil {
		log.Fatalf("Service failed: %v", err)
	}
}
