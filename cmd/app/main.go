package main

import (
	"flag"
	"log"
	"os"

	"WasteFlow/internal/di"
	"WasteFlow/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	train := flag.Bool("train", false, "retrain forecast models at startup")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s store=%s kafka=%t redis=%t clickhouse=%t",
		cfg.Environment, cfg.Exchange.Backend, cfg.Kafka.Enabled, cfg.Redis.Enabled, cfg.ClickHouse.Enabled)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	app.ForceTrain = *train

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
