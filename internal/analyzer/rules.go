// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultNegationMarker prefixes negative keywords in Analysis.MatchedKeywords.
	DefaultNegationMarker = "[NEG]"

	// DefaultAmountPattern accepts ¥9.9, ¥ 9.9, 9.9元 and the spelled-out form.
	DefaultAmountPattern = `(?i)(¥?\s*9\.9|9\.9\s*元|九点九)`

	// DefaultProvider is the only payment provider accepted.
	DefaultProvider = "支付宝"
)

// Rules describes the keyword evidence used to score recognized text.
type Rules struct {
	// PositiveKeywords add +1 each when present.
	PositiveKeywords []string `yaml:"positive-keywords" json:"positive_keywords"`
	// NegativeKeywords subtract 2 each when present.
	NegativeKeywords []string `yaml:"negative-keywords" json:"negative_keywords"`
	// NegationMarker is prepended to matched negative keywords.
	NegationMarker string `yaml:"negation-marker" json:"negation_marker"`
	// AmountPattern is a regular expression matching the target amount.
	AmountPattern string `yaml:"amount-pattern" json:"amount_pattern"`
	// Provider must appear verbatim for HasProvider.
	Provider string `yaml:"provider" json:"provider"`
	// SuccessTokens mark a completed payment; any one is enough.
	SuccessTokens []string `yaml:"success-tokens" json:"success_tokens"`
}

// DefaultRules returns the rule set for a ¥9.9 Alipay payment.
func DefaultRules() Rules {
	return Rules{
		PositiveKeywords: []string{"9.9", "¥9.9", "支付宝", "支付成功", "付款成功", "转账成功"},
		// "金额错误" rarely appears on real receipts.
		NegativeKeywords: []string{"支付失败", "待支付", "微信", "0.00", "金额错误"},
		NegationMarker:   DefaultNegationMarker,
		AmountPattern:    DefaultAmountPattern,
		Provider:         DefaultProvider,
		SuccessTokens:    []string{"成功", "完成"},
	}
}

// Validate reports whether the rules can be compiled into an Analyzer.
func (r Rules) Validate() error {
	if strings.TrimSpace(r.Provider) == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if strings.TrimSpace(r.AmountPattern) == "" {
		return fmt.Errorf("amount pattern cannot be empty")
	}
	if _, err := regexp.Compile(r.AmountPattern); err != nil {
		return fmt.Errorf("invalid amount pattern: %w", err)
	}
	if len(r.SuccessTokens) == 0 {
		return fmt.Errorf("at least one success token is required")
	}
	for _, kw := range append(append([]string{}, r.PositiveKeywords...), r.NegativeKeywords...) {
		if kw == "" {
			return fmt.Errorf("keywords cannot be empty strings")
		}
	}
	return nil
}
