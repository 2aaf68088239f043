// Package main is the entry point for the Brain control-plane service.
// It wires the allocation, risk, treasury, routing, and HFT subsystems
// together through the DI container, serves the HTTP control surface, and
// waits for a shutdown signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/di"
	"github.com/aristath/brain/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting brain")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}

	go func() {
		if err := container.HTTPServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("http server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := container.HTTPServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("error during container shutdown")
	}

	log.Info().Msg("brain stopped")
}
