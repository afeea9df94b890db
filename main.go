// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/plugpower/plug-power-logger/app"
	"github.com/plugpower/plug-power-logger/config"
	"github.com/plugpower/plug-power-logger/pkg/logger"
	"github.com/plugpower/plug-power-logger/storage"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint")
	healthCheck := flag.Bool("health-check", false, "Check destination health and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Poller.LogLevel)

	logger.Info().Msg("Starting Plug Power Data Logger")
	logger.Info().Int("devices", cfg.DeviceCount()).
		Int("destinations", len(cfg.Destinations)).
		Bool("persist", cfg.Poller.Persist).
		Msg("Configuration loaded")

	configChan := make(chan *config.Config)
	configWatcher := config.NewWatcher(*configPath, configChan)

	application, err := app.New(cfg, *metricsPort, configWatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)

	if err := application.Run(configChan); err != nil {
		logger.Fatal().Err(err).Msg("Run failed")
	}
}

// defaultConfigPath honours the CONF_FILE environment variable before
// falling back to the conventional name.
func defaultConfigPath() string {
	if path := os.Getenv("CONF_FILE"); path != "" {
		return path
	}
	return "config.yml"
}

// performHealthCheck checks every configured destination and returns an
// exit code.
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	failed := 0
	for _, dest := range cfg.Destinations {
		sink := storage.NewInfluxDBSink(dest.URL, dest.Token)
		if err := sink.Health(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed for %s: %v\n", dest.Name, err)
			failed++
		} else {
			fmt.Printf("Destination %s is healthy\n", dest.Name)
		}
		sink.Close()
	}

	if failed > 0 {
		return 1
	}
	fmt.Println("Health check passed")
	return 0
}

// performConfigValidation validates the configuration file and returns an
// exit code.
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\nConfiguration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\nConfiguration validation FAILED\nError: %v\n\n", err)
		return 1
	}

	fmt.Println("\nConfiguration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Devices: %d\n", cfg.DeviceCount())
	for _, dest := range cfg.Destinations {
		fmt.Printf("  Destination: %s (%s org=%s bucket=%s)\n", dest.Name, dest.URL, dest.Org, dest.Bucket)
	}
	fmt.Printf("  Persist: %v\n", cfg.Poller.Persist)
	if cfg.Poller.Persist {
		fmt.Printf("  Interval: %s\n", cfg.Poller.IntervalDuration())
	}
	fmt.Printf("  Device Timeout: %s\n", cfg.Poller.TimeoutDuration())
	fmt.Printf("  Concurrency: %d\n", cfg.Poller.Concurrency)
	fmt.Printf("  Log Level: %s\n", cfg.Poller.LogLevel)

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
