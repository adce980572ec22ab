package scoring

import "math"

// MaskOptions describes which features to exclude from scoring. The
// resulting mask zeroes scores after computation.
type MaskOptions struct {
	// TypeMask excludes whole feature classes, typically built by the
	// catalog from configured type names.
	TypeMask []bool
	// MinCount excludes features with fewer than this many occurrences
	// across both classes.
	MinCount int
	// PositivesOnly excludes features absent from the positive corpus.
	PositivesOnly bool
	// MinInfoGain excludes features below this information gain, in bits.
	MinInfoGain float64
}

// BuildMask combines the configured exclusions into a single boolean vector,
// or nil when nothing is excluded.
func BuildMask(posCounts, negCounts []float64, pdocs, ndocs int, opts MaskOptions) []bool {
	n := len(posCounts)
	mask := make([]bool, n)
	any := false
	if opts.TypeMask != nil {
		for i, m := range opts.TypeMask {
			if m {
				mask[i] = true
				any = true
			}
		}
	}
	if opts.MinCount > 0 {
		for i := 0; i < n; i++ {
			if posCounts[i]+negCounts[i] < float64(opts.MinCount) {
				mask[i] = true
				any = true
			}
		}
	}
	if opts.PositivesOnly {
		for i := 0; i < n; i++ {
			if posCounts[i] == 0 {
				mask[i] = true
				any = true
			}
		}
	}
	if opts.MinInfoGain > 0 {
		gain := InfoGain(posCounts, negCounts, pdocs, ndocs)
		for i := 0; i < n; i++ {
			if gain[i] < opts.MinInfoGain {
				mask[i] = true
				any = true
			}
		}
	}
	if !any {
		return nil
	}
	return mask
}

// RarePositiveMask marks positive-scoring features that never occur in the
// positive corpus, a post-scoring exclusion for small input sets.
func RarePositiveMask(scores, posCounts []float64) []bool {
	mask := make([]bool, len(scores))
	for i := range scores {
		mask[i] = scores[i] > 0 && posCounts[i] == 0
	}
	return mask
}

// InfoGain returns the information gain of each feature in bits: the entropy
// of the class prior minus the expected entropy after observing whether the
// feature is present. Posteriors use add-one smoothing.
func InfoGain(posCounts, negCounts []float64, pdocs, ndocs int) []float64 {
	info := func(p float64) float64 {
		if p <= 0 {
			return 0
		}
		return -p * math.Log2(p)
	}
	n := float64(pdocs + ndocs)
	pR := float64(pdocs) / n
	pI := float64(ndocs) / n
	base := info(pR) + info(pI)
	gain := make([]float64, len(posCounts))
	for i := range posCounts {
		t := posCounts[i] + negCounts[i]
		pT := t / n
		pRgT := (posCounts[i] + 1) / (t + 2)
		pIgT := (negCounts[i] + 1) / (t + 2)
		pRgNT := (float64(pdocs) - posCounts[i] + 1) / (n - t + 2)
		pIgNT := (float64(ndocs) - negCounts[i] + 1) / (n - t + 2)
		gain[i] = base - (pT*(info(pRgT)+info(pIgT)) + (1-pT)*(info(pRgNT)+info(pIgNT)))
	}
	return gain
}
