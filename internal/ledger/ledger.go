// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ledger records payment verification verdicts.
// Each Verify call analyzes recognized text, stamps the verdict with a time and
// an identifier and appends it to an in-memory, append-only log. Approved
// identifiers are tracked in a set derived from that log.
package ledger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/payverify/internal/analyzer"
)

const (
	// DefaultLatency models the time an OCR/analysis backend takes.
	DefaultLatency = time.Second

	// RecentLimit is the number of verdicts included in an export.
	RecentLimit = 10

	// NoTextPlaceholder replaces empty recognized text in a verdict.
	NoTextPlaceholder = "(no text recognized)"

	idPrefix      = "VER"
	idSuffixLen   = 6
	idAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	recentWindow  = 24 * time.Hour
	zeroRateLabel = "0%"
)

// Verdict is the immutable outcome of one verification.
type Verdict struct {
	Approved       bool              `json:"approved"`
	Confidence     float64           `json:"confidence"`
	RecognizedText string            `json:"recognized_text"`
	Analysis       analyzer.Analysis `json:"analysis"`
	Timestamp      time.Time         `json:"timestamp"`
	VerificationID string            `json:"verification_id"`
}

func (v Verdict) clone() Verdict {
	v.Analysis.MatchedKeywords = slices.Clone(v.Analysis.MatchedKeywords)
	return v
}

// Stats aggregates the log.
type Stats struct {
	Total        int    `json:"total"`
	Approved     int    `json:"approved"`
	Rejected     int    `json:"rejected"`
	ApprovalRate string `json:"approval_rate"`
	Last24Hours  int    `json:"last_24_hours"`
}

// Snapshot is an export of the ledger at a point in time.
type Snapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	Statistics          Stats     `json:"statistics"`
	RecentVerifications []Verdict `json:"recent_verifications"`
	ApprovedIDs         []string  `json:"approved_ids"`
}

// Observer is notified of every recorded verdict, in log order and one verdict at a time.
// Observers must not call back into the ledger and should hand slow work off to another goroutine.
type Observer interface {
	OnVerdict(v Verdict)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLatency sets the artificial analysis delay. Zero disables it.
func WithLatency(d time.Duration) Option {
	return func(l *Ledger) {
		if d >= 0 {
			l.latency = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithRandom sets the source for identifier suffixes.
func WithRandom(rnd analyzer.Random) Option {
	return func(l *Ledger) {
		if rnd != nil {
			l.rnd = rnd
		}
	}
}

// WithObserver registers an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// Ledger owns the verification log and the approved identifier set.
type Ledger struct {
	analyzer  *analyzer.Analyzer
	latency   time.Duration
	now       func() time.Time
	rnd       analyzer.Random
	observers []Observer

	mu       sync.RWMutex
	entries  []Verdict
	approved map[string]struct{}

	// notifyMu is taken before mu is released, handing verdicts to observers in append order.
	notifyMu sync.Mutex
}

// New creates an empty ledger backed by a.
func New(a *analyzer.Analyzer, opts ...Option) *Ledger {
	l := &Ledger{
		analyzer: a,
		latency:  DefaultLatency,
		now:      time.Now,
		approved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rnd == nil {
		l.rnd = analyzer.NewRandom(0)
	}
	return l
}

// Verify analyzes text and records the verdict.
// The only error is the context ending during the analysis delay, in which case nothing is recorded.
func (l *Ledger) Verify(ctx context.Context, text string) (Verdict, error) {
	if err := l.wait(ctx); err != nil {
		return Verdict{}, err
	}

	analysis := l.analyzer.Analyze(text)
	recognized := text
	if strings.TrimSpace(recognized) == "" {
		recognized = NoTextPlaceholder
	}

	// Stamping under the lock keeps log order and timestamp order identical.
	l.mu.Lock()
	now := l.now()
	verdict := Verdict{
		Approved:       analysis.IsValid,
		Confidence:     analysis.Confidence,
		RecognizedText: recognized,
		Analysis:       analysis,
		Timestamp:      now,
		VerificationID: l.newID(now),
	}
	l.entries = append(l.entries, verdict)
	if verdict.Approved {
		l.approved[verdict.VerificationID] = struct{}{}
	}
	l.notifyMu.Lock()
	l.mu.Unlock()
	defer l.notifyMu.Unlock()

	fields := log.Fields{
		"verification_id": verdict.VerificationID,
		"confidence":      verdict.Confidence,
		"score":           analysis.Score,
	}
	if verdict.Approved {
		log.WithFields(fields).Info("verification approved")
	} else {
		log.WithFields(fields).Info("verification rejected")
	}

	for _, o := range l.observers {
		o.OnVerdict(verdict.clone())
	}

	return verdict.clone(), nil
}

func (l *Ledger) wait(ctx context.Context) error {
	if l.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(l.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newID builds VER-<epoch-millis>-<6 uppercase alphanumerics>.
func (l *Ledger) newID(now time.Time) string {
	var b strings.Builder
	b.Grow(idSuffixLen)
	for i := 0; i < idSuffixLen; i++ {
		b.WriteByte(idAlphabet[l.rnd.Intn(len(idAlphabet))])
	}
	return fmt.Sprintf("%s-%d-%s", idPrefix, now.UnixMilli(), b.String())
}

// Statistics computes aggregates over the whole log.
func (l *Ledger) Statistics() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statisticsLocked(l.now())
}

func (l *Ledger) statisticsLocked(now time.Time) Stats {
	s := Stats{Total: len(l.entries), ApprovalRate: zeroRateLabel}
	for _, v := range l.entries {
		if v.Approved {
			s.Approved++
		}
		if now.Sub(v.Timestamp) < recentWindow {
			s.Last24Hours++
		}
	}
	s.Rejected = s.Total - s.Approved
	if s.Total > 0 {
		s.ApprovalRate = fmt.Sprintf("%.1f%%", float64(s.Approved)/float64(s.Total)*100)
	}
	return s
}

// Export returns statistics, the most recent verdicts in log order and every approved identifier.
func (l *Ledger) Export() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	start := max(0, len(l.entries)-RecentLimit)
	recent := make([]Verdict, 0, len(l.entries)-start)
	for _, v := range l.entries[start:] {
		recent = append(recent, v.clone())
	}

	ids := slices.Sorted(maps.Keys(l.approved))
	if ids == nil {
		ids = []string{}
	}

	return Snapshot{
		Timestamp:           now,
		Statistics:          l.statisticsLocked(now),
		RecentVerifications: recent,
		ApprovedIDs:         ids,
	}
}

// IsApproved reports whether id belongs to an approved verdict.
func (l *Ledger) IsApproved(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.approved[id]
	return ok
}

// Lookup returns the verdict recorded under id.
func (l *Ledger) Lookup(id string) (Verdict, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].VerificationID == id {
			return l.entries[i].clone(), true
		}
	}
	return Verdict{}, false
}

// Len returns the number of recorded verdicts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
