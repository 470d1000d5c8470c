// Package main is the entry point for the Taqa storefront BFF.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jawad0110/taqa-bff/internal/app"
	"github.com/jawad0110/taqa-bff/internal/config"
	"github.com/jawad0110/taqa-bff/internal/logging"
)

func main() {
	configPath := flag.String("config", "config/taqa-bff.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logging.NewDefault("main").Errorf("load config: %v", err)
		os.Exit(1)
	}

	log := logging.New("taqa-bff", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Errorf("initialise application: %v", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
}
