package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sheetmap/internal/config"
	"sheetmap/internal/listener"
	"sheetmap/internal/llm"
	"sheetmap/internal/logging"
	"sheetmap/internal/pipeline"
	"sheetmap/internal/registry"
	"sheetmap/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	var gateway *llm.Client
	if cfg.GeminiAPIKey != "" {
		gateway = llm.NewClient(cfg)
	}
	processor := pipeline.NewProcessingService(cfg, registry.New(), gateway, db)

	svc := listener.NewService(db, cfg, processor)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
