package sample

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/payverify/internal/analyzer"
)

type scriptedRandom struct {
	f float64
	n int
}

func (r scriptedRandom) Float64() float64 { return r.f }
func (r scriptedRandom) Intn(int) int     { return r.n }

func TestGenerator_PicksPoolByRatio(t *testing.T) {
	c := DefaultCatalog()

	valid := NewGenerator(c, scriptedRandom{f: 0.2, n: 1})
	assert.Equal(t, c.Valid[1], valid.Next())

	invalid := NewGenerator(c, scriptedRandom{f: 0.95, n: 3})
	assert.Equal(t, c.Invalid[3], invalid.Next())
}

func TestGenerator_EmptyPoolFallsBack(t *testing.T) {
	g := NewGenerator(Catalog{Valid: []string{"only valid"}}, scriptedRandom{f: 0.99})
	assert.Equal(t, "only valid", g.Next())

	g = NewGenerator(Catalog{}, scriptedRandom{f: 0.1})
	assert.Equal(t, DefaultCatalog().Valid[0], g.Next())
}

func TestGenerator_TemplatesClassifyAsExpected(t *testing.T) {
	a, err := analyzer.New(analyzer.DefaultRules(), scriptedRandom{f: 0.5})
	require.NoError(t, err)

	c := DefaultCatalog()
	approved := 0
	for _, text := range c.Valid {
		if a.Analyze(text).IsValid {
			approved++
		}
	}
	// "付款给 OpenClaw Guide ..." names no provider and no success state.
	assert.Equal(t, len(c.Valid)-1, approved)

	for _, text := range c.Invalid {
		assert.False(t, a.Analyze(text).IsValid, text)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `
valid:
  - "支付宝 支付成功 ¥9.9"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"支付宝 支付成功 ¥9.9"}, c.Valid)
	assert.Equal(t, DefaultCatalog().Invalid, c.Invalid)

	_, err = LoadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("valid: [unterminated"), 0o644))
	_, err = LoadCatalog(path)
	assert.Error(t, err)
}
