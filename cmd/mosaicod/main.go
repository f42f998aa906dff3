// Package main implements the mosaicod daemon: the catalog store,
// chunk storage engine, and streaming surface of the Mosaico data
// platform in one binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mosaicolabs/mosaico/internal/app"
	"github.com/mosaicolabs/mosaico/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		storageType string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&storageType, "storage", "", "Chunk storage backend: local, s3")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Mosaico - Multi-Modal Sensor Recording Platform\n\n")
		fmt.Fprintf(os.Stderr, "Usage: mosaicod [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mosaicod --data-dir /var/lib/mosaico\n")
		fmt.Fprintf(os.Stderr, "  mosaicod --config /etc/mosaico/mosaicod.yaml\n")
		fmt.Fprintf(os.Stderr, "  mosaicod --storage s3 --data-dir /var/lib/mosaico\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  MOSAICO_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  MOSAICO_CATALOG_PATH   Catalog database file\n")
		fmt.Fprintf(os.Stderr, "  MOSAICO_STORAGE_TYPE   Chunk storage backend (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  MOSAICO_S3_BUCKET      S3 bucket for chunk objects\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("mosaicod version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, storageType)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, storageType string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take highest priority.
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                        MOSAICO                            ║")
	log.Printf("║        Multi-Modal Sensor Recording Data Platform         ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Catalog:  %s", cfg.Catalog.Path)
	log.Printf("  Storage:  %s", cfg.Storage.Type)
	if cfg.Storage.Type == "s3" {
		log.Printf("  Bucket:   %s", cfg.Storage.S3.Bucket)
	}
	log.Printf("")
}
