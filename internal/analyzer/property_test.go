package analyzer

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_StructuralChecksAreDeterministic checks that only the confidence varies between runs.
func TestProperty_StructuralChecksAreDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)
	a, err := New(DefaultRules(), NewRandom(1))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	properties.Property("repeated analysis yields identical evidence", prop.ForAll(
		func(prefix, suffix string, withAmount, withProvider bool) bool {
			text := prefix
			if withAmount {
				text += " ¥9.9 "
			}
			if withProvider {
				text += " 支付宝 "
			}
			text += suffix

			first := a.Analyze(text)
			second := a.Analyze(text)

			if first.HasCorrectAmount != second.HasCorrectAmount ||
				first.HasProvider != second.HasProvider ||
				first.HasSuccessStatus != second.HasSuccessStatus ||
				first.Score != second.Score ||
				strings.Join(first.MatchedKeywords, "|") != strings.Join(second.MatchedKeywords, "|") {
				return false
			}
			return (!withAmount || first.HasCorrectAmount) && (!withProvider || first.HasProvider)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestProperty_NegativeOnlyTextIsRejected checks the veto of negative evidence.
func TestProperty_NegativeOnlyTextIsRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)
	negatives := []string{"支付失败", "待支付", "微信", "0.00", "金额错误"}

	properties.Property("negative keywords without positives give score <= -2", prop.ForAll(
		func(idx []int, draw float64) bool {
			a, err := New(DefaultRules(), fixedRandom{f: draw})
			if err != nil {
				return false
			}
			parts := make([]string, 0, len(idx)+1)
			parts = append(parts, negatives[0])
			for _, i := range idx {
				parts = append(parts, negatives[i])
			}
			got := a.Analyze(strings.Join(parts, " "))
			return got.Score <= -2 && !got.IsValid
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.Float64Range(0, 0.999),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestProperty_FullEvidenceConfidenceBand checks the top tier stays within [0.90, 0.99].
func TestProperty_FullEvidenceConfidenceBand(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("amount, provider and success give confidence in [0.90, 0.99]", prop.ForAll(
		func(draw float64, merchant string) bool {
			a, err := New(DefaultRules(), fixedRandom{f: draw})
			if err != nil {
				return false
			}
			got := a.Analyze("支付宝 支付成功 金额: ¥9.9 商户: " + merchant)
			return got.HasCorrectAmount && got.HasProvider && got.HasSuccessStatus &&
				got.Confidence >= 0.90 && got.Confidence <= MaxConfidence
		},
		gen.Float64Range(0, 0.999),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
