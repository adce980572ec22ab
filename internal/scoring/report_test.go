package scoring

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpoulter/mscanner-sub000/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(filepath.Join(t.TempDir(), "features.txt"))
	require.NoError(t, err)
	cat.RegisterDocument(map[string][]string{"mesh": {"asthma", "child"}})
	return cat
}

func TestFeatureStats(t *testing.T) {
	e, err := NewEngine(3, nil, Options{
		Variant:     Bayesian,
		Pseudocount: floatPtr(0.1),
		Mask:        []bool{false, false, true},
	})
	require.NoError(t, err)
	require.NoError(t, e.Update([]float64{2, 0, 1}, []float64{1, 3, 0}, 2, 4))

	s := e.Stats()
	assert.Equal(t, 3, s.FeatsTotal)
	assert.Equal(t, 1, s.FeatsMasked)
	assert.Equal(t, 2, s.FeatsUsed)
	assert.Equal(t, 2, s.PosOccurrences)
	assert.Equal(t, 4, s.NegOccurrences)
	assert.Equal(t, 1, s.PosDistinct)
	assert.Equal(t, 2, s.NegDistinct)
	assert.InDelta(t, 1.0, s.PosAverage, 1e-12)
	assert.InDelta(t, 1.0, s.NegAverage, 1e-12)
}

func TestTFIDF(t *testing.T) {
	e, err := NewEngine(3, nil, Options{Variant: Bayesian, Pseudocount: floatPtr(0.1)})
	require.NoError(t, err)
	require.NoError(t, e.Update([]float64{3, 1, 0}, []float64{1, 3, 0}, 4, 4))

	tfidf := e.TFIDF()
	require.Len(t, tfidf, 3)
	assert.Greater(t, tfidf[0], tfidf[1])
	assert.Equal(t, 0.0, tfidf[2])
}

func TestBestTFIDFOrder(t *testing.T) {
	cat := testCatalog(t)
	e, err := NewEngine(2, nil, Options{Variant: Bayesian, Pseudocount: floatPtr(0.1)})
	require.NoError(t, err)
	require.NoError(t, e.Update([]float64{1, 3}, []float64{3, 1}, 4, 4))

	entries := e.BestTFIDF(2, cat)
	require.Len(t, entries, 2)
	assert.GreaterOrEqual(t, entries[0].TFIDF, entries[1].TFIDF)
	assert.Equal(t, uint32(1), entries[0].ID)
	assert.Equal(t, "child", entries[0].Name)

	entries = e.BestTFIDF(1, cat)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(1), entries[0].ID)
}

func TestWriteCSV(t *testing.T) {
	cat := testCatalog(t)
	e, err := NewEngine(2, nil, Options{Variant: Bayesian, Pseudocount: floatPtr(0.1)})
	require.NoError(t, err)
	require.NoError(t, e.Update([]float64{3, 0}, []float64{0, 3}, 4, 4))

	var buf bytes.Buffer
	require.NoError(t, e.WriteCSV(&buf, cat))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"score,positives,negatives,pseudocount,numerator,denominator,termid,type,term",
		lines[0])
	// Rows are ordered by decreasing score: the positively associated
	// feature first.
	assert.True(t, strings.HasSuffix(lines[1], ",0,mesh,asthma"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ",1,mesh,child"), lines[2])
}
