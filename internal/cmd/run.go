// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/payverify/internal/api"
	"github.com/traylinx/payverify/internal/sample"
)

const shutdownTimeout = 10 * time.Second

// StartService serves the HTTP API until SIGINT or SIGTERM, then exports the
// ledger snapshot to exportPath when one is set. SIGHUP rotates the audit log.
func StartService(s *Service, addr, exportPath string) error {
	ctxSignal, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go rotateOnSignal(ctxSignal, s, hup)

	if err := Serve(ctxSignal, s, addr); err != nil {
		return err
	}
	return s.ExportSnapshot(exportPath)
}

// rotateOnSignal rotates the audit log for every value received on sig until ctx is done.
func rotateOnSignal(ctx context.Context, s *Service, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if err := s.RotateAudit(); err != nil {
				log.WithError(err).Warn("audit rotation failed")
			}
		}
	}
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, s *Service, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(s.Ledger(), s.routerOptions()...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("payverify API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server exited with error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// RunDemo verifies n texts drawn from gen, printing each verdict followed by
// the statistics and the export as indented JSON.
func RunDemo(ctx context.Context, s *Service, gen *sample.Generator, n int, out io.Writer) error {
	l := s.Ledger()
	for i := 1; i <= n; i++ {
		v, err := l.Verify(ctx, gen.Next())
		if err != nil {
			return fmt.Errorf("demo verification %d: %w", i, err)
		}
		verdict := "REJECTED"
		if v.Approved {
			verdict = "APPROVED"
		}
		fmt.Fprintf(out, "#%d %s %s confidence=%.2f score=%d text=%q\n",
			i, v.VerificationID, verdict, v.Confidence, v.Analysis.Score, v.RecognizedText)
	}

	stats, err := json.MarshalIndent(l.Statistics(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	fmt.Fprintf(out, "\nstatistics:\n%s\n", stats)

	export, err := json.MarshalIndent(l.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	fmt.Fprintf(out, "\nexport:\n%s\n", export)
	return nil
}
