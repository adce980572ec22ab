// Package scoring turns per-class feature occurrence counts into log
// likelihood-ratio feature scores, with a choice of probability estimators.
package scoring

import (
	"fmt"
	"math"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Variant selects the probability estimator used for feature scores.
type Variant int

const (
	// Bayesian smooths each class frequency with a pseudocount prior:
	// p = (count + pseudo) / (docs + 1).
	Bayesian Variant = iota
	// WithAbsence additionally models feature non-occurrence: frequencies
	// are rescaled to odds and the non-occurrence terms move into a scalar
	// offset shared by every document.
	WithAbsence
	// MLEFloor uses raw maximum-likelihood frequencies with zero replaced
	// by 1e-8, and ignores the pseudocount.
	MLEFloor
)

func (v Variant) String() string {
	switch v {
	case Bayesian:
		return "bayesian"
	case WithAbsence:
		return "withabsence"
	case MLEFloor:
		return "mlefloor"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant maps a configuration string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "bayesian":
		return Bayesian, nil
	case "withabsence":
		return WithAbsence, nil
	case "mlefloor":
		return MLEFloor, nil
	default:
		return 0, apperrors.Configf("unknown scoring variant %q", s)
	}
}

// Options parameterises an Engine.
type Options struct {
	Variant Variant
	// Pseudocount, when set, is a constant prior applied to every feature.
	Pseudocount *float64
	// PseudocountVec, when set, is a per-feature prior and takes precedence
	// over Pseudocount. Length must equal the feature count.
	PseudocountVec []float64
	// Mask marks features whose scores are forced to zero after
	// computation. Masking happens last so it cannot distort the
	// pseudocount-dependent probabilities of other features.
	Mask []bool
}

// Engine computes and holds a feature score vector. It is not safe for
// concurrent use; cross-validation builds one engine per fold.
type Engine struct {
	variant Variant
	pseudo  []float64
	mask    []bool

	posCounts, negCounts []float64
	pdocs, ndocs         int

	pfreqs, nfreqs []float64
	scores         []float64
	offset         float64
}

// NewEngine creates an engine over nfeats features. background is the corpus
// frequency of each feature, used as the pseudocount when Options names
// neither a constant nor a vector.
func NewEngine(nfeats int, background []float64, opts Options) (*Engine, error) {
	e := &Engine{variant: opts.Variant}
	switch {
	case opts.PseudocountVec != nil:
		if len(opts.PseudocountVec) != nfeats {
			return nil, apperrors.Configf("pseudocount vector has %d entries, want %d",
				len(opts.PseudocountVec), nfeats)
		}
		e.pseudo = opts.PseudocountVec
	case opts.Pseudocount != nil:
		e.pseudo = make([]float64, nfeats)
		for i := range e.pseudo {
			e.pseudo[i] = *opts.Pseudocount
		}
	default:
		if len(background) != nfeats {
			return nil, apperrors.Configf("background vector has %d entries, want %d",
				len(background), nfeats)
		}
		e.pseudo = background
	}
	if opts.Mask != nil {
		if len(opts.Mask) != nfeats {
			return nil, apperrors.Configf("mask has %d entries, want %d", len(opts.Mask), nfeats)
		}
		e.mask = opts.Mask
	}
	return e, nil
}

// Update recomputes feature scores from new counts. Zero pdocs or ndocs is
// permitted; any resulting non-finite scores propagate as IEEE sentinels
// rather than failing the update.
func (e *Engine) Update(posCounts, negCounts []float64, pdocs, ndocs int) error {
	n := len(e.pseudo)
	if len(posCounts) != n || len(negCounts) != n {
		return apperrors.Configf("count vectors have %d/%d entries, want %d",
			len(posCounts), len(negCounts), n)
	}
	e.posCounts, e.negCounts = posCounts, negCounts
	e.pdocs, e.ndocs = pdocs, ndocs
	e.offset = 0
	switch e.variant {
	case Bayesian:
		e.computeBayesian()
	case WithAbsence:
		e.computeWithAbsence()
	case MLEFloor:
		e.computeMLEFloor()
	}
	e.applyMask()
	return nil
}

func (e *Engine) computeBayesian() {
	n := len(e.pseudo)
	e.pfreqs = make([]float64, n)
	e.nfreqs = make([]float64, n)
	e.scores = make([]float64, n)
	pd, nd := float64(e.pdocs)+1, float64(e.ndocs)+1
	for i := 0; i < n; i++ {
		e.pfreqs[i] = (e.pseudo[i] + e.posCounts[i]) / pd
		e.nfreqs[i] = (e.pseudo[i] + e.negCounts[i]) / nd
		e.scores[i] = math.Log(e.pfreqs[i]) - math.Log(e.nfreqs[i])
	}
}

func (e *Engine) computeWithAbsence() {
	n := len(e.pseudo)
	e.pfreqs = make([]float64, n)
	e.nfreqs = make([]float64, n)
	e.scores = make([]float64, n)
	pd, nd := float64(e.pdocs)+1, float64(e.ndocs)+1
	var absence float64
	for i := 0; i < n; i++ {
		pf := (e.pseudo[i] + e.posCounts[i]) / pd
		nf := (e.pseudo[i] + e.negCounts[i]) / nd
		// Odds-rescaled frequencies; the non-occurrence terms accumulate
		// into the offset.
		e.pfreqs[i] = pf / (1 - pf)
		e.nfreqs[i] = nf / (1 - nf)
		e.scores[i] = math.Log(e.pfreqs[i]) - math.Log(e.nfreqs[i])
		// Masked features are dropped from the model entirely, so their
		// non-occurrence must not shift the offset either.
		if e.mask == nil || !e.mask[i] {
			absence += math.Log(1-pf) - math.Log(1-nf)
		}
	}
	e.offset = absence + math.Log(float64(e.pdocs)) - math.Log(float64(e.ndocs))
}

func (e *Engine) computeMLEFloor() {
	n := len(e.pseudo)
	e.pfreqs = make([]float64, n)
	e.nfreqs = make([]float64, n)
	e.scores = make([]float64, n)
	pd, nd := float64(e.pdocs), float64(e.ndocs)
	for i := 0; i < n; i++ {
		pf := e.posCounts[i] / pd
		nf := e.negCounts[i] / nd
		if pf == 0 {
			pf = 1e-8
		}
		if nf == 0 {
			nf = 1e-8
		}
		e.pfreqs[i] = pf
		e.nfreqs[i] = nf
		e.scores[i] = math.Log(pf) - math.Log(nf)
	}
}

func (e *Engine) applyMask() {
	if e.mask == nil {
		return
	}
	for i, masked := range e.mask {
		if masked {
			e.scores[i] = 0
		}
	}
}

// Scores returns the current per-feature score vector. The slice is owned by
// the engine and replaced on Update.
func (e *Engine) Scores() []float64 { return e.scores }

// Offset returns the scalar added to every document score.
func (e *Engine) Offset() float64 { return e.offset }

// NumFeatures returns the feature space size.
func (e *Engine) NumFeatures() int { return len(e.pseudo) }

// Variant returns the estimator this engine was built with.
func (e *Engine) Variant() Variant { return e.variant }

// Pseudocounts returns the resolved per-feature prior vector.
func (e *Engine) Pseudocounts() []float64 { return e.pseudo }

// Mask returns the exclusion mask, or nil when no features are masked.
func (e *Engine) Mask() []bool { return e.mask }

// DocCounts returns the document totals of the last Update.
func (e *Engine) DocCounts() (pdocs, ndocs int) { return e.pdocs, e.ndocs }

// ScoreOf returns offset + the sum of scores of the document's features.
func (e *Engine) ScoreOf(features []uint32) (float64, error) {
	score := e.offset
	for _, fid := range features {
		if int(fid) >= len(e.scores) {
			return 0, unknownFeature(fid, len(e.scores))
		}
		score += e.scores[fid]
	}
	return score, nil
}

// DocScores scores each listed document, returning float32 values in input
// order.
func (e *Engine) DocScores(src VectorSource, docIDs []uint32) ([]float32, error) {
	out := make([]float32, len(docIDs))
	for i, docID := range docIDs {
		vec, err := src.Get(docID)
		if err != nil {
			return nil, err
		}
		score, err := e.ScoreOf(vec)
		if err != nil {
			return nil, err
		}
		out[i] = float32(score)
	}
	return out, nil
}

// Degenerate reports the IDs of features whose score is not finite, for
// surfacing in per-feature diagnostics. Non-finite scores are legal and flow
// through ranking unchanged.
func (e *Engine) Degenerate() []uint32 {
	var ids []uint32
	for i, s := range e.scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			ids = append(ids, uint32(i))
		}
	}
	return ids
}

func unknownFeature(fid uint32, nfeats int) error {
	return fmt.Errorf("feature %d of %d: %w", fid, nfeats, apperrors.ErrUnknownFeature)
}
