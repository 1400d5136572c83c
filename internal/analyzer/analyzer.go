// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package analyzer scores recognized text from a payment screenshot.
// Keyword evidence and three structural checks (amount, provider, success status)
// are combined into a confidence value; only the confidence carries random noise,
// the structural checks are deterministic for a given text.
package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	// ApprovalThreshold is the confidence a verdict must exceed to be approved.
	ApprovalThreshold = 0.70

	// MinConfidence and MaxConfidence bound every reported confidence.
	MinConfidence = 0.10
	MaxConfidence = 0.99

	// NoiseAmplitude is the full width of the symmetric perturbation.
	NoiseAmplitude = 0.10

	positiveWeight = 1
	negativeWeight = 2
)

// Analysis is the structured result of analyzing one recognized text.
type Analysis struct {
	IsValid          bool     `json:"is_valid"`
	Confidence       float64  `json:"confidence"`
	Score            int      `json:"score"`
	MatchedKeywords  []string `json:"matched_keywords"`
	HasCorrectAmount bool     `json:"has_correct_amount"`
	HasProvider      bool     `json:"has_provider"`
	HasSuccessStatus bool     `json:"has_success_status"`
}

// Analyzer applies a fixed Rules set to recognized text.
type Analyzer struct {
	rules  Rules
	amount *regexp.Regexp
	rnd    Random
}

// New compiles rules into an Analyzer. A nil rnd uses a clock-seeded source.
func New(rules Rules, rnd Random) (*Analyzer, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer rules: %w", err)
	}
	amount, err := regexp.Compile(rules.AmountPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile amount pattern: %w", err)
	}
	if rnd == nil {
		rnd = NewRandom(0)
	}
	return &Analyzer{rules: rules, amount: amount, rnd: rnd}, nil
}

// Rules returns a copy of the rules in use.
func (a *Analyzer) Rules() Rules {
	r := a.rules
	r.PositiveKeywords = append([]string(nil), a.rules.PositiveKeywords...)
	r.NegativeKeywords = append([]string(nil), a.rules.NegativeKeywords...)
	r.SuccessTokens = append([]string(nil), a.rules.SuccessTokens...)
	return r
}

// Analyze scores text. It never fails: empty or unrelated text yields a low confidence.
func (a *Analyzer) Analyze(text string) Analysis {
	score, matched := a.scoreKeywords(text)

	res := Analysis{
		Score:            score,
		MatchedKeywords:  matched,
		HasCorrectAmount: a.amount.MatchString(text),
		HasProvider:      strings.Contains(text, a.rules.Provider),
		HasSuccessStatus: containsAny(text, a.rules.SuccessTokens),
	}

	confidence := BaseConfidence(res.HasCorrectAmount, res.HasProvider, res.HasSuccessStatus)
	confidence += (a.rnd.Float64() - 0.5) * NoiseAmplitude
	res.Confidence = roundConfidence(clamp(confidence, MinConfidence, MaxConfidence))
	res.IsValid = res.Confidence > ApprovalThreshold && res.Score > 0

	return res
}

// scoreKeywords walks the positive set then the negative set, counting each keyword at most once.
func (a *Analyzer) scoreKeywords(text string) (int, []string) {
	score := 0
	matched := make([]string, 0, len(a.rules.PositiveKeywords))
	for _, kw := range a.rules.PositiveKeywords {
		if strings.Contains(text, kw) {
			score += positiveWeight
			matched = append(matched, kw)
		}
	}
	for _, kw := range a.rules.NegativeKeywords {
		if strings.Contains(text, kw) {
			score -= negativeWeight
			matched = append(matched, a.rules.NegationMarker+kw)
		}
	}
	return score, matched
}

// BaseConfidence is the confidence before noise; the first matching tier wins.
func BaseConfidence(amount, provider, success bool) float64 {
	switch {
	case amount && provider && success:
		return 0.95
	case amount && provider:
		return 0.80
	case amount:
		return 0.60
	default:
		return 0.30
	}
}

func containsAny(text string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}
