package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
)

const demoYAML = `
items:
  demo-guitar:
    metadata:
      category: Musical Instruments
      subcategory: Guitars
      confidence: 0.9
    valuation:
      estimated_value: {min: 900, max: 1100, currency: USD}
      confidence: 85
      explanation: canned
  demo-chair:
    provenance:
      confidence_score: 70
`

func TestParse_Lookup(t *testing.T) {
	tbl, err := Parse([]byte(demoYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"demo-chair", "demo-guitar"}, tbl.Items())
	assert.True(t, tbl.Has("demo-guitar"))
	assert.False(t, tbl.Has("other"))

	v, ok := tbl.Lookup("demo-guitar", model.StageValuation)
	require.True(t, ok)
	assert.NotNil(t, v)

	_, ok = tbl.Lookup("demo-guitar", model.StageProvenance)
	assert.False(t, ok)
	_, ok = tbl.Lookup("nope", model.StageValuation)
	assert.False(t, ok)
}

func TestParse_UnknownStage(t *testing.T) {
	_, err := Parse([]byte("items:\n  x:\n    pricing: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "pricing"`)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("items: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox: parse yaml")
}

func TestParse_Empty(t *testing.T) {
	tbl, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, tbl.Items())
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	_, ok := tbl.Lookup("a", "b")
	assert.False(t, ok)
	assert.False(t, tbl.Has("a"))
	assert.Nil(t, tbl.Items())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demoYAML), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tbl.Items(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTable_DrivesExecutor(t *testing.T) {
	tbl, err := Parse([]byte(demoYAML))
	require.NoError(t, err)

	ex := executor.New(nil, executor.DefaultConfig(), executor.WithOverrides(tbl))
	got, err := executor.RunStep(context.Background(), ex, model.StageValuation,
		func(context.Context, model.ValuationInput) (model.ValuationResult, error) {
			t.Fatal("sandboxed step must not run")
			return model.ValuationResult{}, nil
		}, model.ValuationInput{}, "wf-1", "demo-guitar")
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.EstimatedValue.Min)
	assert.Equal(t, int64(1100), got.EstimatedValue.Max)
	assert.Equal(t, "USD", got.EstimatedValue.Currency)
	assert.Equal(t, 85, got.Confidence)
}
