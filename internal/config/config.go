// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the payverify server.
// It loads a YAML file and exposes server, logging, verification rule, audit
// and hook settings with defaults applied for every absent key.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/traylinx/payverify/internal/analyzer"
)

const (
	DefaultPort         = 8317
	DefaultLatency      = time.Second
	DefaultAuditLogPath = "./logs/verification_audit.log"
	DefaultHooksDir     = "./hooks"
	DefaultLogsDir      = "logs"
	maxAnalysisLatency  = time.Minute
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsDir is where main.log is written when LoggingToFile is set.
	LogsDir string `yaml:"logs-dir" json:"logs-dir"`

	// Verification configures the analyzer rules and the ledger.
	Verification VerificationConfig `yaml:"verification" json:"verification"`

	// Audit configures the verdict audit trail.
	Audit AuditConfig `yaml:"audit" json:"audit"`

	// Hooks configures verdict hooks.
	Hooks HooksConfig `yaml:"hooks" json:"hooks"`

	// ExportPath, when set, receives a JSON snapshot of the ledger on shutdown.
	ExportPath string `yaml:"export-path" json:"export-path"`

	// ExportBackup keeps the previous snapshot as <export-path>.bak before overwriting it.
	ExportBackup bool `yaml:"export-backup" json:"export-backup"`
}

// VerificationConfig holds the analyzer rules and ledger timing.
type VerificationConfig struct {
	// Latency is the artificial analysis delay applied to each verification.
	Latency time.Duration `yaml:"latency" json:"latency"`

	// Seed fixes the random source for reproducible runs. Zero seeds from the clock.
	Seed int64 `yaml:"seed" json:"seed"`

	// Provider is the payment provider name that must appear in the text.
	Provider string `yaml:"provider" json:"provider"`

	// AmountPattern is the regular expression for the target amount.
	AmountPattern string `yaml:"amount-pattern" json:"amount-pattern"`

	PositiveKeywords []string `yaml:"positive-keywords" json:"positive-keywords"`
	NegativeKeywords []string `yaml:"negative-keywords" json:"negative-keywords"`
	SuccessTokens    []string `yaml:"success-tokens" json:"success-tokens"`

	// SampleCatalog optionally points at a YAML file of demo texts.
	SampleCatalog string `yaml:"sample-catalog" json:"sample-catalog"`
}

// AuditConfig holds the verdict audit trail settings.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	MaxSizeMB  int    `yaml:"max-size-mb" json:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups" json:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days" json:"max-age-days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// HooksConfig holds the verdict hook settings.
type HooksConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
	// Watch reloads hooks when files in Dir change.
	Watch bool `yaml:"watch" json:"watch"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	rules := analyzer.DefaultRules()
	return &Config{
		Host:    "",
		Port:    DefaultPort,
		LogsDir: DefaultLogsDir,
		Verification: VerificationConfig{
			Latency:          DefaultLatency,
			Provider:         rules.Provider,
			AmountPattern:    rules.AmountPattern,
			PositiveKeywords: rules.PositiveKeywords,
			NegativeKeywords: rules.NegativeKeywords,
			SuccessTokens:    rules.SuccessTokens,
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    DefaultAuditLogPath,
		},
		Hooks: HooksConfig{
			Enabled: false,
			Dir:     DefaultHooksDir,
		},
	}
}

// LoadConfig reads YAML from configFile.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, it returns Default().
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	// Defaults are set before unmarshal so that absent keys keep them.
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize normalizes values and rejects settings the verifier cannot run with.
func (cfg *Config) Sanitize() error {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.LogsDir) == "" {
		cfg.LogsDir = DefaultLogsDir
	}

	v := &cfg.Verification
	if v.Latency < 0 {
		v.Latency = 0
	}
	if v.Latency > maxAnalysisLatency {
		return fmt.Errorf("verification latency %s exceeds %s", v.Latency, maxAnalysisLatency)
	}
	v.Provider = strings.TrimSpace(v.Provider)
	v.PositiveKeywords = normalizeList(v.PositiveKeywords)
	v.NegativeKeywords = normalizeList(v.NegativeKeywords)
	v.SuccessTokens = normalizeList(v.SuccessTokens)

	if err := cfg.Rules().Validate(); err != nil {
		return fmt.Errorf("invalid verification rules: %w", err)
	}

	if cfg.Audit.Enabled && strings.TrimSpace(cfg.Audit.Path) == "" {
		cfg.Audit.Path = DefaultAuditLogPath
	}
	if cfg.Hooks.Enabled && strings.TrimSpace(cfg.Hooks.Dir) == "" {
		cfg.Hooks.Dir = DefaultHooksDir
	}
	cfg.ExportPath = strings.TrimSpace(cfg.ExportPath)
	return nil
}

// Rules builds analyzer rules, falling back to the defaults for anything unset.
func (cfg *Config) Rules() analyzer.Rules {
	rules := analyzer.DefaultRules()
	v := cfg.Verification
	if v.Provider != "" {
		rules.Provider = v.Provider
	}
	if v.AmountPattern != "" {
		rules.AmountPattern = v.AmountPattern
	}
	if len(v.PositiveKeywords) > 0 {
		rules.PositiveKeywords = v.PositiveKeywords
	}
	if len(v.NegativeKeywords) > 0 {
		rules.NegativeKeywords = v.NegativeKeywords
	}
	if len(v.SuccessTokens) > 0 {
		rules.SuccessTokens = v.SuccessTokens
	}
	return rules
}

// Address returns host:port for the HTTP listener.
func (cfg *Config) Address() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// normalizeList trims entries and drops empty and duplicate values, keeping order.
func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
