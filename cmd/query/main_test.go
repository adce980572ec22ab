package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpoulter/mscanner-sub000/internal/rank"
	"github.com/gpoulter/mscanner-sub000/internal/scoring"
)

func TestQuerySummaryCarriesElapsed(t *testing.T) {
	pc := 0.1
	engine, err := scoring.NewEngine(1, nil, scoring.Options{Variant: scoring.Bayesian, Pseudocount: &pc})
	require.NoError(t, err)
	require.NoError(t, engine.Update([]float64{1}, []float64{2}, 2, 4))

	recs := []rank.ScoreRecord{{Score: 1.5, DocID: 3}}
	params := rank.Params{Limit: 10, Threshold: 0.5}
	summary := querySummary(engine, params, recs, []uint32{1, 2}, 100, true, 1500*time.Millisecond)

	assert.Equal(t, 2, summary.Positives)
	assert.Equal(t, 100, summary.Corpus)
	assert.Equal(t, 1, summary.Results)
	assert.Equal(t, "bayesian", summary.Variant)
	assert.Equal(t, float32(0.5), summary.Threshold)
	assert.True(t, summary.Cached)
	assert.InDelta(t, 1.5, summary.Elapsed, 1e-9)
}

func TestPickStrategy(t *testing.T) {
	for _, name := range []string{"auto", "scalar", "batched"} {
		s, err := pickStrategy(name)
		require.NoError(t, err, name)
		require.NotNil(t, s, name)
	}
	_, err := pickStrategy("vectorised")
	require.Error(t, err)
}
