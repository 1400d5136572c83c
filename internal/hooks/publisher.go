// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hooks

import (
	"github.com/traylinx/payverify/internal/ledger"
)

// VerdictPublisher turns ledger verdicts into hook events.
type VerdictPublisher struct {
	bus *EventBus
}

// NewVerdictPublisher returns a ledger.Observer publishing on bus.
func NewVerdictPublisher(bus *EventBus) *VerdictPublisher {
	return &VerdictPublisher{bus: bus}
}

// OnVerdict implements ledger.Observer. Events are delivered asynchronously.
func (p *VerdictPublisher) OnVerdict(v ledger.Verdict) {
	p.bus.PublishAsync(VerdictEvent(v))
}

// VerdictEvent builds the event context for v.
func VerdictEvent(v ledger.Verdict) *EventContext {
	event := EventVerificationRejected
	if v.Approved {
		event = EventVerificationApproved
	}
	return &EventContext{
		Event:          event,
		Timestamp:      v.Timestamp,
		VerificationID: v.VerificationID,
		Data: map[string]any{
			"approved":           v.Approved,
			"confidence":         v.Confidence,
			"score":              v.Analysis.Score,
			"matched_keywords":   v.Analysis.MatchedKeywords,
			"has_correct_amount": v.Analysis.HasCorrectAmount,
			"has_provider":       v.Analysis.HasProvider,
			"has_success_status": v.Analysis.HasSuccessStatus,
			"verification_id":    v.VerificationID,
		},
	}
}
