// Package stats derives classifier performance statistics from the scores
// that cross-validation assigns to positive and negative documents.
package stats

import (
	"math"
	"sort"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Analyzer holds the full set of threshold-sweep statistics for one pair of
// score arrays. All vectors are indexed by position in UScores, the sorted
// distinct union of both score arrays, so entry i describes the classifier
// that labels a document positive when its score is at least UScores[i].
type Analyzer struct {
	Alpha float64

	// PScores and NScores are sorted ascending copies of the inputs.
	PScores []float32
	NScores []float32
	P, N, A int

	// UScores lists the distinct scores in increasing order. PE and NE
	// count the positives and negatives holding exactly each score.
	UScores []float32
	PE, NE  []float64

	// Confusion matrix counts at each threshold.
	TP, TN, FP, FN []float64

	// Ratio vectors at each threshold. PPV is defined as 1 when no
	// documents are labelled positive.
	TPR, FPR, PPV, FM, FMa []float64

	// Trapezoidal curve areas. The ROC estimate under-counts near the
	// corners where the boundary points are absent; W is the unbiased
	// Wilcoxon equivalent.
	ROCArea float64
	PRArea  float64

	// W is the Hanley-McNeil area under the ROC curve with its standard
	// error.
	W       float64
	WStdErr float64

	// AvPrec is precision averaged over each point of recall.
	AvPrec float64

	// Break-even point, where precision is closest to recall.
	BreakevenIndex int
	Breakeven      float64

	// Threshold maximising the alpha-weighted F measure.
	ThresholdIndex int
	Threshold      float32

	Tuned Tuned
}

// Tuned is the performance snapshot at the tuned threshold.
type Tuned struct {
	P, N, A        int
	T, F           int
	TP, TN, FP, FN int

	TPR, FNR, TNR, FPR float64
	PPV, NPV, FDR      float64

	Accuracy   float64
	Prevalence float64
	Error      float64
	Enrichment float64
	FPTPRatio  float64

	FMeasure      float64
	FMeasureAlpha float64
	FMeasureMax   float64
}

// New computes all statistics for the given score arrays. Alpha weights
// precision against recall in the tuned F measure and must lie in (0,1).
// The inputs are copied, never mutated. Non-finite scores are carried
// through the sweep rather than rejected.
func New(pscores, nscores []float32, alpha float64) (*Analyzer, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, apperrors.Configf("alpha must be in (0,1), got %g", alpha)
	}
	if len(pscores) == 0 || len(nscores) == 0 {
		return nil, apperrors.Configf("performance statistics need scores from both classes (%d positive, %d negative)",
			len(pscores), len(nscores))
	}
	a := &Analyzer{
		Alpha:   alpha,
		PScores: sortedCopy(pscores),
		NScores: sortedCopy(nscores),
		P:       len(pscores),
		N:       len(nscores),
		A:       len(pscores) + len(nscores),
	}
	a.confusionSweep()
	a.ratioVectors()
	a.curveAreas()
	a.rocError()
	a.averagedPrecision()
	a.tuneThreshold()
	a.findBreakeven()
	a.Tuned = a.tunedStats()
	return a, nil
}

func sortedCopy(scores []float32) []float32 {
	out := make([]float32, len(scores))
	copy(out, scores)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// confusionSweep walks both sorted arrays once per threshold point with
// monotonic cursors, filling the confusion matrix vectors.
func (a *Analyzer) confusionSweep() {
	merged := make([]float32, 0, a.A)
	merged = append(merged, a.PScores...)
	merged = append(merged, a.NScores...)
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	a.UScores = merged[:0:0]
	for i, s := range merged {
		if i == 0 || s != merged[i-1] {
			a.UScores = append(a.UScores, s)
		}
	}

	vlen := len(a.UScores)
	a.PE = make([]float64, vlen)
	a.NE = make([]float64, vlen)
	a.TP = make([]float64, vlen)
	a.TN = make([]float64, vlen)
	a.FP = make([]float64, vlen)
	a.FN = make([]float64, vlen)

	fn, tn := 0, 0
	for idx, threshold := range a.UScores {
		for fn < a.P && a.PScores[fn] < threshold {
			fn++
		}
		pcount := fn
		for pcount < a.P && a.PScores[pcount] == threshold {
			pcount++
		}
		a.PE[idx] = float64(pcount - fn)

		for tn < a.N && a.NScores[tn] < threshold {
			tn++
		}
		ncount := tn
		for ncount < a.N && a.NScores[ncount] == threshold {
			ncount++
		}
		a.NE[idx] = float64(ncount - tn)

		a.TP[idx] = float64(a.P - fn)
		a.FN[idx] = float64(fn)
		a.TN[idx] = float64(tn)
		a.FP[idx] = float64(a.N - tn)
	}
}

func (a *Analyzer) ratioVectors() {
	vlen := len(a.UScores)
	a.TPR = make([]float64, vlen)
	a.FPR = make([]float64, vlen)
	a.PPV = make([]float64, vlen)
	a.FM = make([]float64, vlen)
	a.FMa = make([]float64, vlen)
	for i := 0; i < vlen; i++ {
		a.TPR[i] = a.TP[i] / float64(a.P)
		a.FPR[i] = a.FP[i] / float64(a.N)
		if a.TP[i]+a.FP[i] == 0 {
			a.PPV[i] = 1.0
		} else {
			a.PPV[i] = a.TP[i] / (a.TP[i] + a.FP[i])
		}
		if a.TPR[i]+a.PPV[i] == 0 {
			a.FM[i] = 0
		} else {
			a.FM[i] = 2 * a.TPR[i] * a.PPV[i] / (a.TPR[i] + a.PPV[i])
		}
		a.FMa[i] = 1 / (a.Alpha/a.PPV[i] + (1-a.Alpha)/a.TPR[i])
	}
}

// curveAreas integrates the ROC and precision-recall curves with the
// trapezoidal rule. Both x vectors decrease as the threshold climbs, so the
// integration runs over the reversed order.
func (a *Analyzer) curveAreas() {
	a.ROCArea = trapezoidReversed(a.TPR, a.FPR)
	a.PRArea = trapezoidReversed(a.PPV, a.TPR)
}

func trapezoidReversed(y, x []float64) float64 {
	area := 0.0
	for i := len(x) - 1; i > 0; i-- {
		area += (x[i-1] - x[i]) * (y[i-1] + y[i]) / 2
	}
	return area
}

// rocError computes the Wilcoxon statistic W and its standard error after
// Hanley and McNeil (1982). The row vectors follow Table II of the paper.
func (a *Analyzer) rocError() {
	var s5, s6, s7 float64
	for i := range a.UScores {
		r1 := a.NE[i]
		r2 := a.TP[i] - a.PE[i]
		r3 := a.PE[i]
		r4 := a.TN[i]
		s5 += r1*r2 + 0.5*r1*r3
		s6 += r3 * (r4*r4 + r4*r1 + r1*r1/3)
		s7 += r1 * (r2*r2 + r2*r3 + r3*r3/3)
	}
	p, n := float64(a.P), float64(a.N)
	a.W = s5 / (n * p)
	q2 := s6 / (p * n * n)
	q1 := s7 / (n * p * p)
	a.WStdErr = math.Sqrt((a.W*(1-a.W) + (p-1)*(q1-a.W*a.W) + (n-1)*(q2-a.W*a.W)) / (p * n))
}

// averagedPrecision merges both score arrays in decreasing order and
// accumulates precision at each recall point. Ties between a positive and a
// negative count the positive first.
func (a *Analyzer) averagedPrecision() {
	sum := 0.0
	tp, fp := 0, 0
	pi, ni := a.P-1, a.N-1
	for pi >= 0 || ni >= 0 {
		if pi >= 0 && (ni < 0 || a.PScores[pi] >= a.NScores[ni]) {
			tp++
			sum += float64(tp) / float64(tp+fp)
			pi--
		} else {
			fp++
			ni--
		}
	}
	a.AvPrec = sum / float64(tp)
}

// tuneThreshold picks the first threshold index with the maximum
// alpha-weighted F measure.
func (a *Analyzer) tuneThreshold() {
	best := 0
	for i := 1; i < len(a.FMa); i++ {
		if a.FMa[i] > a.FMa[best] {
			best = i
		}
	}
	a.ThresholdIndex = best
	a.Threshold = a.UScores[best]
}

// findBreakeven locates the threshold where precision is closest to recall
// and reports their midpoint.
func (a *Analyzer) findBreakeven() {
	best := 0
	bestDiff := math.Abs(a.TPR[0] - a.PPV[0])
	for i := 1; i < len(a.TPR); i++ {
		if d := math.Abs(a.TPR[i] - a.PPV[i]); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	a.BreakevenIndex = best
	a.Breakeven = 0.5 * (a.TPR[best] + a.PPV[best])
}

func (a *Analyzer) tunedStats() Tuned {
	i := a.ThresholdIndex
	t := Tuned{
		P:  a.P,
		N:  a.N,
		A:  a.A,
		TP: int(a.TP[i]),
		TN: int(a.TN[i]),
		FP: int(a.FP[i]),
		FN: int(a.FN[i]),
	}
	t.T = t.TP + t.TN
	t.F = t.FP + t.FN
	if t.TP+t.FN != 0 {
		t.TPR = float64(t.TP) / float64(t.TP+t.FN)
		t.FNR = float64(t.FN) / float64(t.TP+t.FN)
	}
	if t.TN+t.FP != 0 {
		t.TNR = float64(t.TN) / float64(t.TN+t.FP)
		t.FPR = float64(t.FP) / float64(t.TN+t.FP)
	}
	if t.TP+t.FP != 0 {
		t.PPV = float64(t.TP) / float64(t.TP+t.FP)
		t.FDR = float64(t.FP) / float64(t.TP+t.FP)
	}
	if t.TN+t.FN != 0 {
		t.NPV = float64(t.TN) / float64(t.TN+t.FN)
	}
	if t.A != 0 {
		t.Accuracy = float64(t.T) / float64(t.A)
		t.Prevalence = float64(t.P) / float64(t.A)
	}
	t.Error = 1 - t.Accuracy
	if t.TP != 0 {
		t.FPTPRatio = float64(t.FP) / float64(t.TP)
	}
	if t.TPR > 0 && t.PPV > 0 {
		t.FMeasure = 2 * t.TPR * t.PPV / (t.TPR + t.PPV)
		t.FMeasureAlpha = 1 / (a.Alpha/t.PPV + (1-a.Alpha)/t.TPR)
		for _, fm := range a.FM {
			if fm > t.FMeasureMax {
				t.FMeasureMax = fm
			}
		}
	}
	if t.Prevalence > 0 {
		t.Enrichment = t.PPV / t.Prevalence
	}
	return t
}
