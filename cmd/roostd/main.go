package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"roost/internal/config"
	"roost/internal/daemon"
	"roost/internal/logging"
	"roost/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return
	}

	registry, runner, acts, err := buildServices(cfg, st, logger)
	if err != nil {
		logger.Error("wire services", logging.Error(err))
		_ = st.Close()
		return
	}

	d, err := daemon.New(cfg, st, logger, runner, registry, acts)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = st.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("roostd shutting down")
	d.Stop()
}
