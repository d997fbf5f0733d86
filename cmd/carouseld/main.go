package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"carousel/internal/config"
	"carousel/internal/ipc"
	"carousel/internal/logging"
	"carousel/internal/recovery"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := recovery.Open(cfg)
	if err != nil {
		logger.Error("open recovery store", logging.Args(logging.Error(err))...)
		return
	}

	d, err := buildDaemon(cfg, store, logger)
	if err != nil {
		logger.Error("create daemon", logging.Args(logging.Error(err))...)
		store.Close()
		return
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, buildSocketPath(cfg), d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Args(logging.Error(err))...)
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Args(logging.Error(err))...)
		return
	}

	<-ctx.Done()
	logger.Info("carouseld shutting down")
}
