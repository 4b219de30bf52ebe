package main

import (
	"flag"
	"log"
	"os"

	"FxSentry/internal/di"
	"FxSentry/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s signal_interval=%s position_interval=%s",
		cfg.Environment, cfg.Monitor.Signal.Interval, cfg.Monitor.Position.Interval)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
