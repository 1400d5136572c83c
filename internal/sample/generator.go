// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sample produces mock recognized text for exercising the verifier
// without an OCR backend.
package sample

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/traylinx/payverify/internal/analyzer"
)

// DefaultValidRatio is the share of generated texts drawn from the valid templates.
const DefaultValidRatio = 0.9

// Catalog holds the template texts.
type Catalog struct {
	Valid   []string `yaml:"valid"`
	Invalid []string `yaml:"invalid"`
}

// DefaultCatalog mirrors typical Alipay receipts and common failure screenshots.
func DefaultCatalog() Catalog {
	return Catalog{
		Valid: []string{
			"支付宝 支付成功 金额: ¥9.9 时间: 2026-02-24 20:45:30 商户: OpenClaw Guide",
			"支付宝支付 ¥9.90 付款成功 交易时间: 刚刚",
			"账单详情 金额: 9.9元 状态: 支付成功 支付宝",
			"付款给 OpenClaw Guide 金额: ¥9.9 时间: 今天 20:45",
			"支付宝 转账 金额: 9.9 收款方: OpenClaw Guide 状态: 成功",
		},
		Invalid: []string{
			"支付宝 支付失败 金额: ¥0.00",
			"账单详情 金额: 1.0元 状态: 待支付",
			"截图不清晰，无法识别",
			"微信支付 金额: ¥9.9",
			"支付宝 金额: ¥99.0",
		},
	}
}

// LoadCatalog reads a YAML catalog with `valid` and `invalid` lists.
// Missing lists fall back to the defaults.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read sample catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse sample catalog: %w", err)
	}
	def := DefaultCatalog()
	if len(c.Valid) == 0 {
		c.Valid = def.Valid
	}
	if len(c.Invalid) == 0 {
		c.Invalid = def.Invalid
	}
	return c, nil
}

// Generator draws texts from a Catalog.
type Generator struct {
	catalog    Catalog
	validRatio float64
	rnd        analyzer.Random
}

// NewGenerator returns a generator using DefaultValidRatio. A nil rnd is clock-seeded.
func NewGenerator(c Catalog, rnd analyzer.Random) *Generator {
	if rnd == nil {
		rnd = analyzer.NewRandom(0)
	}
	if len(c.Valid) == 0 && len(c.Invalid) == 0 {
		c = DefaultCatalog()
	}
	return &Generator{catalog: c, validRatio: DefaultValidRatio, rnd: rnd}
}

// Next returns one template text.
func (g *Generator) Next() string {
	pool := g.catalog.Invalid
	if g.rnd.Float64() < g.validRatio {
		pool = g.catalog.Valid
	}
	if len(pool) == 0 {
		pool = append(append([]string{}, g.catalog.Valid...), g.catalog.Invalid...)
	}
	return pool[g.rnd.Intn(len(pool))]
}
