package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"vacinacao/internal/config"
	"vacinacao/internal/logging"
	"vacinacao/internal/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logFile, err := logging.Open(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
		return 1
	}
	defer logFile.Close()

	log := logging.New(io.MultiWriter(logFile, os.Stderr), cfg.LogVerbosity)

	if err := cfg.Validate(); err != nil {
		log.Error(err, "invalid configuration")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cfg.RunTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer timeoutCancel()
	}

	processor := tasks.NewTaskProcessor(cfg, log)
	res, runErr := processor.HandleScrapeTask(ctx)

	if cfg.MetricsTextfile != "" {
		if err := processor.Metrics().WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Error(err, "failed to write metrics", "path", cfg.MetricsTextfile)
		}
	}

	if runErr != nil {
		return 1
	}

	log.Info("run finished",
		"features", res.Features,
		"backup", res.BackupPath,
		"rows_added", res.RowsAdded,
		"report_rows", res.ReportRows,
		"notify_failures", res.NotifyFailures,
	)
	return 0
}
