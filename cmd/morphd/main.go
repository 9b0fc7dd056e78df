package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"morph/internal/config"
	"morph/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override configured log level")
	development := flag.Bool("dev", false, "log to stderr in a human-readable format")
	flag.Parse()

	// Secrets such as MORPH_API_TOKEN and MINIO_ACCESS_KEY may live in a
	// local .env file instead of the config.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *development,
	}); err != nil {
		log.Fatalf("run daemon: %v", err)
	}
}
