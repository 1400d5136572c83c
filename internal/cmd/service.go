// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cmd wires configuration into a running verification service.
// It builds the analyzer, ledger and observers, serves the HTTP API with
// graceful shutdown and runs the sample-driven demo.
package cmd

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/payverify/internal/analyzer"
	"github.com/traylinx/payverify/internal/api"
	"github.com/traylinx/payverify/internal/audit"
	"github.com/traylinx/payverify/internal/config"
	"github.com/traylinx/payverify/internal/hooks"
	"github.com/traylinx/payverify/internal/ledger"
	"github.com/traylinx/payverify/internal/util"
)

// Service owns the ledger and everything observing it.
type Service struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	audit  *audit.Logger
	bus    *hooks.EventBus
	hooks  *hooks.HookManager

	closeOnce sync.Once
}

// NewService builds a service from cfg. Extra ledger options are applied last.
func NewService(cfg *config.Config, opts ...ledger.Option) (*Service, error) {
	a, err := analyzer.New(cfg.Rules(), seeded(cfg.Verification.Seed, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer: %w", err)
	}

	s := &Service{cfg: cfg}

	s.audit, err = audit.NewLogger(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		LogPath:    cfg.Audit.Path,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
		Compress:   cfg.Audit.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLatency(cfg.Verification.Latency),
		ledger.WithRandom(seeded(cfg.Verification.Seed, 1)),
		ledger.WithObserver(s.audit),
	}

	if cfg.Hooks.Enabled {
		if err := s.startHooks(); err != nil {
			_ = s.audit.Close()
			return nil, err
		}
		ledgerOpts = append(ledgerOpts, ledger.WithObserver(hooks.NewVerdictPublisher(s.bus)))
	}

	s.ledger = ledger.New(a, append(ledgerOpts, opts...)...)
	return s, nil
}

func (s *Service) startHooks() error {
	s.bus = hooks.NewEventBus()
	mgr, err := hooks.NewHookManager(s.cfg.Hooks.Dir, s.bus)
	if err != nil {
		s.bus.Shutdown()
		return fmt.Errorf("failed to create hook manager: %w", err)
	}
	if err := mgr.LoadHooks(); err != nil {
		s.bus.Shutdown()
		return fmt.Errorf("failed to load hooks: %w", err)
	}
	mgr.SubscribeToAllEvents()
	if s.cfg.Hooks.Watch {
		if err := mgr.StartWatcher(); err != nil {
			log.WithError(err).Warn("hook watcher unavailable, hooks will not reload")
		}
	}
	s.hooks = mgr
	log.WithFields(log.Fields{"dir": mgr.GetHooksDir(), "hooks": len(mgr.GetHooks())}).Info("verdict hooks loaded")
	return nil
}

// Ledger returns the service ledger.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// ExportSnapshot writes the ledger export to path. An empty path is a no-op.
func (s *Service) ExportSnapshot(path string) error {
	if path == "" {
		return nil
	}
	opts := util.DefaultSecureWriteOptions()
	opts.CreateBackup = s.cfg.ExportBackup
	if err := util.SecureWriteJSON(path, s.ledger.Export(), opts); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	log.WithField("path", path).Info("ledger snapshot exported")
	return nil
}

// RotateAudit starts a new audit file. It is a no-op when auditing is disabled.
func (s *Service) RotateAudit() error {
	if !s.cfg.Audit.Enabled {
		return nil
	}
	if err := s.audit.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	log.WithField("path", s.cfg.Audit.Path).Info("audit log rotated")
	return nil
}

// HookStats returns the event bus counters. ok is false when hooks are disabled.
func (s *Service) HookStats() (stats hooks.BusStats, ok bool) {
	if s.bus == nil {
		return hooks.BusStats{}, false
	}
	return s.bus.Stats(), true
}

func (s *Service) routerOptions() []api.RouterOption {
	if s.bus == nil {
		return nil
	}
	return []api.RouterOption{api.WithHookStats(s.bus.Stats)}
}

// Close stops hooks, waits for triggered actions and flushes the audit trail.
// Verdicts recorded before Close still reach their hooks.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.hooks != nil {
			s.hooks.StopWatcher()
		}
		if s.bus != nil {
			s.bus.Shutdown()
		}
		if s.hooks != nil {
			s.hooks.Wait()
		}
		if s.audit != nil {
			if err := s.audit.Close(); err != nil {
				log.WithError(err).Warn("failed to close audit log")
			}
		}
	})
}

// seeded derives independent sources from one configured seed. Zero stays clock-seeded.
func seeded(seed int64, stream int64) analyzer.Random {
	if seed == 0 {
		return analyzer.NewRandom(0)
	}
	return analyzer.NewRandom(seed + stream)
}
