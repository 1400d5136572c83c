// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the payverify server.
// It serves the verification API by default, or runs a sample-driven demo
// when -demo is given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/payverify/internal/analyzer"
	"github.com/traylinx/payverify/internal/buildinfo"
	"github.com/traylinx/payverify/internal/cmd"
	"github.com/traylinx/payverify/internal/config"
	"github.com/traylinx/payverify/internal/logging"
	"github.com/traylinx/payverify/internal/sample"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// options are the command-line flags.
type options struct {
	configPath string
	demo       int
	exportPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.IntVar(&opts.demo, "demo", 0, "Run N sample verifications, print the results and exit")
	flag.StringVar(&opts.exportPath, "export", "", "Write the ledger snapshot to this path on exit")
	flag.Parse()

	if wd, err := os.Getwd(); err == nil {
		// Load environment variables from .env if present.
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if err := run(opts, os.Stdout); err != nil {
		log.Errorf("payverify: %v", err)
		os.Exit(1)
	}
}

// run loads configuration, builds the service and either runs the demo or serves
// until a shutdown signal. The service and log outputs are closed before it returns.
func run(opts options, out io.Writer) error {
	// A missing config file is fine only at the default location.
	cfg, err := config.LoadConfigOptional(opts.configPath, opts.configPath == DefaultConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if opts.exportPath != "" {
		cfg.ExportPath = opts.exportPath
	}

	logging.SetLevel(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsDir); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}
	defer logging.Close()

	service, err := cmd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to start payverify: %w", err)
	}
	defer service.Close()

	log.WithFields(log.Fields{"version": buildinfo.String(), "config": opts.configPath}).Info("payverify starting")

	if opts.demo > 0 {
		if err := runDemo(cfg, service, opts.demo, out); err != nil {
			return fmt.Errorf("demo failed: %w", err)
		}
		return nil
	}
	return cmd.StartService(service, cfg.Address(), cfg.ExportPath)
}

func runDemo(cfg *config.Config, service *cmd.Service, n int, out io.Writer) error {
	catalog := sample.DefaultCatalog()
	if path := cfg.Verification.SampleCatalog; path != "" {
		c, err := sample.LoadCatalog(path)
		if err != nil {
			return err
		}
		catalog = c
	}

	var rnd analyzer.Random
	if cfg.Verification.Seed != 0 {
		rnd = analyzer.NewRandom(cfg.Verification.Seed + 2)
	}
	gen := sample.NewGenerator(catalog, rnd)

	if err := cmd.RunDemo(context.Background(), service, gen, n, out); err != nil {
		return err
	}
	return service.ExportSnapshot(cfg.ExportPath)
}

// applyEnv applies PAYVERIFY_* overrides on top of the file configuration.
func applyEnv(cfg *config.Config) error {
	if value, ok := os.LookupEnv("PAYVERIFY_PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("PAYVERIFY_PORT: %w", err)
		}
		cfg.Port = port
	}
	if value, ok := os.LookupEnv("PAYVERIFY_DEBUG"); ok {
		if debug, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			cfg.Debug = debug
		}
	}
	return cfg.Sanitize()
}
