// Command payme serves the invoice and contact API.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/payme/internal/app/runtime"
	"github.com/R3E-Network/payme/internal/config"
	"github.com/R3E-Network/payme/internal/logging"
)

func main() {
	var (
		envFile    = flag.String("env", ".env", "Path to an optional .env file")
		configFile = flag.String("config", "", "Path to an optional YAML config file (overrides "+config.ConfigFileEnv+")")
	)
	flag.Parse()

	// variables already set in the environment win over the file
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load env (%s): %v", *envFile, err)
	}
	if *configFile != "" {
		os.Setenv(config.ConfigFileEnv, *configFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("payme", cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build application")
	}

	if err := application.Run(ctx); err != nil {
		logger.WithError(err).Error("server stopped")
	}
	logger.Info("shutting down")

	if err := application.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("shutdown error")
		os.Exit(1)
	}
	logger.Info("payme stopped")
}
