package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// The worked example used throughout: positives score 1, 2, 3 and negatives
// score 0, 1.5, 4. Distinct thresholds are 0, 1, 1.5, 2, 3, 4.
func workedExample(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New([]float32{1, 2, 3}, []float32{0, 1.5, 4}, 0.5)
	require.NoError(t, err)
	return a
}

func TestConfusionSweep(t *testing.T) {
	a := workedExample(t)

	require.Equal(t, []float32{0, 1, 1.5, 2, 3, 4}, a.UScores)

	// At threshold 1.5 the positives 2 and 3 qualify along with the
	// negatives 1.5 and 4.
	i := 2
	assert.Equal(t, 2.0, a.TP[i])
	assert.Equal(t, 1.0, a.FN[i])
	assert.Equal(t, 1.0, a.TN[i])
	assert.Equal(t, 2.0, a.FP[i])

	assert.Equal(t, []float64{3, 3, 2, 2, 1, 0}, a.TP)
	assert.Equal(t, []float64{3, 2, 2, 1, 1, 1}, a.FP)

	// Each threshold counts the documents holding exactly that score.
	assert.Equal(t, []float64{0, 1, 0, 1, 1, 0}, a.PE)
	assert.Equal(t, []float64{1, 0, 1, 0, 0, 1}, a.NE)
}

func TestConfusionMonotone(t *testing.T) {
	a := workedExample(t)
	for i := 1; i < len(a.UScores); i++ {
		assert.LessOrEqual(t, a.TP[i], a.TP[i-1])
		assert.LessOrEqual(t, a.FP[i], a.FP[i-1])
		assert.GreaterOrEqual(t, a.TN[i], a.TN[i-1])
		assert.GreaterOrEqual(t, a.FN[i], a.FN[i-1])
		assert.Equal(t, float64(a.P), a.TP[i]+a.FN[i])
		assert.Equal(t, float64(a.N), a.TN[i]+a.FP[i])
	}
}

func TestRatioVectors(t *testing.T) {
	a := workedExample(t)
	for i := range a.UScores {
		assert.GreaterOrEqual(t, a.TPR[i], 0.0)
		assert.LessOrEqual(t, a.TPR[i], 1.0)
		assert.GreaterOrEqual(t, a.FPR[i], 0.0)
		assert.LessOrEqual(t, a.FPR[i], 1.0)
		assert.GreaterOrEqual(t, a.PPV[i], 0.0)
		assert.LessOrEqual(t, a.PPV[i], 1.0)
	}
	assert.InDelta(t, 2.0/3, a.TPR[2], 1e-12)
	assert.InDelta(t, 0.5, a.PPV[2], 1e-12)
	assert.InDelta(t, 0.75, a.FM[1], 1e-12)
	// Nothing qualifies above the top score; FM degrades to zero there.
	assert.Equal(t, 0.0, a.FM[len(a.FM)-1])
}

func TestPPVAtTopThreshold(t *testing.T) {
	a, err := New([]float32{1, 1}, []float32{0}, 0.5)
	require.NoError(t, err)
	last := len(a.UScores) - 1
	assert.Equal(t, 2.0, a.TP[last])
	assert.Equal(t, 1.0, a.PPV[last])
}

func TestWilcoxonW(t *testing.T) {
	a := workedExample(t)
	// 9 positive/negative pairs, 5 ranked correctly.
	assert.InDelta(t, 5.0/9, a.W, 1e-12)
	assert.InDelta(t, 0.267078, a.WStdErr, 1e-5)
	assert.InDelta(t, 5.0/9, a.ROCArea, 1e-12)
}

func TestPerfectSeparation(t *testing.T) {
	a, err := New([]float32{2, 3}, []float32{0, 1}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.W, 1e-12)
	assert.InDelta(t, 0.0, a.WStdErr, 1e-12)
	assert.InDelta(t, 1.0, a.ROCArea, 1e-12)
	assert.InDelta(t, 1.0, a.AvPrec, 1e-12)
}

func TestAveragedPrecision(t *testing.T) {
	a := workedExample(t)
	// Descending merge: 4(n), 3(p, 1/2), 2(p, 2/3), 1.5(n), 1(p, 3/5).
	want := (0.5 + 2.0/3 + 0.6) / 3
	assert.InDelta(t, want, a.AvPrec, 1e-12)
}

func TestCurveAreas(t *testing.T) {
	a := workedExample(t)
	assert.InDelta(t, 0.461111, a.PRArea, 1e-5)
}

func TestTunedThreshold(t *testing.T) {
	a := workedExample(t)
	// F measure peaks at threshold 1: TP=3, FP=2 gives precision 0.6 at
	// full recall.
	assert.Equal(t, 1, a.ThresholdIndex)
	assert.Equal(t, float32(1), a.Threshold)

	assert.Equal(t, 3, a.Tuned.TP)
	assert.Equal(t, 1, a.Tuned.TN)
	assert.Equal(t, 2, a.Tuned.FP)
	assert.Equal(t, 0, a.Tuned.FN)
	assert.InDelta(t, 1.0, a.Tuned.TPR, 1e-12)
	assert.InDelta(t, 0.6, a.Tuned.PPV, 1e-12)
	assert.InDelta(t, 2.0/3, a.Tuned.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, a.Tuned.Prevalence, 1e-12)
	assert.InDelta(t, 1.2, a.Tuned.Enrichment, 1e-12)
	assert.InDelta(t, 0.75, a.Tuned.FMeasure, 1e-12)
	assert.InDelta(t, 0.75, a.Tuned.FMeasureMax, 1e-12)
}

func TestBreakeven(t *testing.T) {
	a := workedExample(t)
	// Precision equals recall at threshold 2 (both 2/3).
	assert.Equal(t, 3, a.BreakevenIndex)
	assert.InDelta(t, 2.0/3, a.Breakeven, 1e-12)
}

func TestInputsNotMutated(t *testing.T) {
	pos := []float32{3, 1, 2}
	neg := []float32{4, 0}
	_, err := New(pos, neg, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1, 2}, pos)
	assert.Equal(t, []float32{4, 0}, neg)
}

func TestNewRejectsBadInputs(t *testing.T) {
	_, err := New([]float32{1}, []float32{0}, 0)
	require.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = New([]float32{1}, []float32{0}, 1)
	require.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = New(nil, []float32{0}, 0.5)
	require.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = New([]float32{1}, nil, 0.5)
	require.ErrorIs(t, err, apperrors.ErrConfig)
}
