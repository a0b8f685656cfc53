package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/logging"
	"github.com/dpays/jefferson/internal/server"
)

// Version and Commit are stamped at build time via -ldflags, e.g.:
//
//	go build -ldflags "-X main.Version=1.2.3 -X main.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	configPath string
	host       string
	port       int
	workers    int
	jsonLogs   bool
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file (or JEFFERSON_CONFIG)")
	flag.StringVar(&f.host, "host", "", "Override proxy bind host")
	flag.IntVar(&f.port, "port", 0, "Override proxy bind port")
	flag.IntVar(&f.workers, "workers", -1, "Clamp GOMAXPROCS (can only reduce; -1 means default/auto)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

// applyCLIOverrides applies command-line overrides to the config. These
// never persist anywhere; the YAML file and environment remain the
// source of truth for the next run.
func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.workers >= 0 {
		cfg.Server.Workers.Mode = config.WorkersFixed
		cfg.Server.Workers.Value = f.workers
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	instanceID := uuid.New().String()[:8]
	logger.Info("jefferson starting",
		"instance_id", instanceID,
		"version", Version,
		"commit", Commit,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"workers", cfg.Server.Workers.String(),
		"upstreams", len(cfg.Registry.Rules),
		"api_enabled", cfg.API.Enabled,
	)

	runner := server.NewRunner(logger)
	if err := runner.Run(cfg, Version, Commit); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	return nil
}
