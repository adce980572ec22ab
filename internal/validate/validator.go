// Package validate drives cross-validated scoring of a labelled corpus:
// partitioning into folds, refitting the scoring engine per fold, and
// collecting held-out document scores.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gpoulter/mscanner-sub000/internal/scoring"
	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Partition splits n items into k contiguous folds. The first n%k folds get
// one extra item; start offsets are the cumulative sizes. This front-loaded
// remainder assignment is relied on by tests and by reproducibility of past
// runs, so it must not change.
func Partition(n, k int) (starts, sizes []int) {
	base, rem := n/k, n%k
	starts = make([]int, k)
	sizes = make([]int, k)
	for i := 0; i < k; i++ {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
		if i > 0 {
			starts[i] = starts[i-1] + sizes[i-1]
		}
	}
	return starts, sizes
}

// Validator owns one cross-validation run.
type Validator struct {
	// Src resolves document IDs to stored feature vectors.
	Src scoring.VectorSource
	// NumFeatures is the catalog size; count vectors use this length.
	NumFeatures int
	// Background is the corpus frequency vector passed to each engine.
	Background []float64
	// Opts parameterises every engine fit.
	Opts scoring.Options
	// Positives and Negatives are the labelled document IDs. The validator
	// never mutates these slices; shuffling happens on private copies.
	Positives []uint32
	Negatives []uint32
	// NFolds is the fold count. Zero selects leave-one-out, which is only
	// defined for the Bayesian variant and is slower.
	NFolds int
	// Seed fixes the shuffle. Ignored when Shuffle is false.
	Seed int64
	// Shuffle randomises fold membership. Disable only for testing.
	Shuffle bool

	logger *slog.Logger
}

// Result carries the held-out scores, index-aligned with the input ID
// slices, plus the engine refit on the entire labelled set. Downstream
// reporting (feature CSV, TF-IDF listing) must use Final, never a per-fold
// fit.
type Result struct {
	PScores []float32
	NScores []float32
	Final   *scoring.Engine
}

// Run performs the validation. Configuration problems are reported before
// any scoring work begins. A fold failure aborts the whole run.
func (v *Validator) Run(ctx context.Context) (*Result, error) {
	if v.logger == nil {
		v.logger = slog.Default().With("component", "cross-validator")
	}
	pdocs, ndocs := len(v.Positives), len(v.Negatives)
	if pdocs == 0 || ndocs == 0 {
		return nil, apperrors.Configf("need both classes, got %d positives and %d negatives", pdocs, ndocs)
	}
	if v.NFolds == 0 {
		return v.runLeaveOneOut(ctx)
	}
	if v.NFolds < 1 || v.NFolds > pdocs || v.NFolds > ndocs {
		return nil, apperrors.Configf("nfolds %d outside 1..min(%d,%d)", v.NFolds, pdocs, ndocs)
	}

	v.logger.Info("cross-validating", "positives", pdocs, "negatives", ndocs, "folds", v.NFolds)
	var rng *rand.Rand
	if v.Shuffle {
		rng = rand.New(rand.NewSource(v.Seed))
	}
	pperm, shufPos := permute(v.Positives, rng)
	nperm, shufNeg := permute(v.Negatives, rng)

	totalPos, err := scoring.Counts(v.NumFeatures, v.Src, v.Positives)
	if err != nil {
		return nil, fmt.Errorf("counting positive features: %w", err)
	}
	totalNeg, err := scoring.Counts(v.NumFeatures, v.Src, v.Negatives)
	if err != nil {
		return nil, fmt.Errorf("counting negative features: %w", err)
	}

	pstarts, psizes := Partition(pdocs, v.NFolds)
	nstarts, nsizes := Partition(ndocs, v.NFolds)
	res := &Result{
		PScores: make([]float32, pdocs),
		NScores: make([]float32, ndocs),
	}

	// Folds are independent: each builds its own engine from subtracted
	// counts and writes a disjoint range of the output arrays.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for fold := 0; fold < v.NFolds; fold++ {
		fold := fold
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ps, pn := pstarts[fold], psizes[fold]
			ns, nn := nstarts[fold], nsizes[fold]
			if pn == 0 || nn == 0 {
				return apperrors.Configf("fold %d is empty", fold)
			}
			heldPos := shufPos[ps : ps+pn]
			heldNeg := shufNeg[ns : ns+nn]
			foldPos, err := scoring.Counts(v.NumFeatures, v.Src, heldPos)
			if err != nil {
				return fmt.Errorf("fold %d: %w", fold, err)
			}
			foldNeg, err := scoring.Counts(v.NumFeatures, v.Src, heldNeg)
			if err != nil {
				return fmt.Errorf("fold %d: %w", fold, err)
			}
			engine, err := scoring.NewEngine(v.NumFeatures, v.Background, v.Opts)
			if err != nil {
				return err
			}
			err = engine.Update(
				scoring.SubCounts(totalPos, foldPos),
				scoring.SubCounts(totalNeg, foldNeg),
				pdocs-pn, ndocs-nn,
			)
			if err != nil {
				return fmt.Errorf("fold %d refit: %w", fold, err)
			}
			pscores, err := engine.DocScores(v.Src, heldPos)
			if err != nil {
				return fmt.Errorf("fold %d: %w", fold, err)
			}
			nscores, err := engine.DocScores(v.Src, heldNeg)
			if err != nil {
				return fmt.Errorf("fold %d: %w", fold, err)
			}
			// Write held-out scores back at the caller's positions so the
			// result arrays align with the input ID slices.
			for j, sc := range pscores {
				res.PScores[pperm[ps+j]] = sc
			}
			for j, sc := range nscores {
				res.NScores[nperm[ns+j]] = sc
			}
			v.logger.Debug("fold complete", "fold", fold, "held_pos", pn, "held_neg", nn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Refit once more on everything; this is the fit used for reporting.
	final, err := scoring.NewEngine(v.NumFeatures, v.Background, v.Opts)
	if err != nil {
		return nil, err
	}
	if err := final.Update(totalPos, totalNeg, pdocs, ndocs); err != nil {
		return nil, fmt.Errorf("final refit: %w", err)
	}
	res.Final = final
	return res, nil
}

// runLeaveOneOut scores each document with its own contribution removed from
// its class's counts. No per-fold refits: each score is a fresh weighted sum
// over the document's own feature list, which is why this mode is slow.
func (v *Validator) runLeaveOneOut(ctx context.Context) (*Result, error) {
	if v.Opts.Variant != scoring.Bayesian {
		return nil, apperrors.Configf("leave-one-out requires the bayesian variant, got %s", v.Opts.Variant)
	}
	pdocs, ndocs := len(v.Positives), len(v.Negatives)
	v.logger.Info("leave-one-out validation", "positives", pdocs, "negatives", ndocs)

	totalPos, err := scoring.Counts(v.NumFeatures, v.Src, v.Positives)
	if err != nil {
		return nil, fmt.Errorf("counting positive features: %w", err)
	}
	totalNeg, err := scoring.Counts(v.NumFeatures, v.Src, v.Negatives)
	if err != nil {
		return nil, fmt.Errorf("counting negative features: %w", err)
	}
	// Build a probe engine to resolve the pseudocount vector and mask the
	// same way the k-fold path would.
	probe, err := scoring.NewEngine(v.NumFeatures, v.Background, v.Opts)
	if err != nil {
		return nil, err
	}
	ps := probe.Pseudocounts()
	mask := probe.Mask()

	res := &Result{
		PScores: make([]float32, pdocs),
		NScores: make([]float32, ndocs),
	}
	scoreOne := func(features []uint32, pmod, nmod float64) float64 {
		var score float64
		for _, fid := range features {
			if mask != nil && mask[fid] {
				continue
			}
			f := int(fid)
			pf := (totalPos[f] + pmod + ps[f]) / (float64(pdocs) + pmod + 2*ps[f])
			nf := (totalNeg[f] + nmod + ps[f]) / (float64(ndocs) + nmod + 2*ps[f])
			score += math.Log(pf) - math.Log(nf)
		}
		return score
	}
	for i, docID := range v.Positives {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Partial(err)
		}
		vec, err := v.Src.Get(docID)
		if err != nil {
			return nil, err
		}
		res.PScores[i] = float32(scoreOne(vec, -1, 0))
	}
	for i, docID := range v.Negatives {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Partial(err)
		}
		vec, err := v.Src.Get(docID)
		if err != nil {
			return nil, err
		}
		res.NScores[i] = float32(scoreOne(vec, 0, -1))
	}

	final, err := scoring.NewEngine(v.NumFeatures, v.Background, v.Opts)
	if err != nil {
		return nil, err
	}
	if err := final.Update(totalPos, totalNeg, pdocs, ndocs); err != nil {
		return nil, fmt.Errorf("final refit: %w", err)
	}
	res.Final = final
	return res, nil
}

// permute returns a permutation and the IDs reordered by it. A nil rng
// yields the identity, so two runs over identical inputs produce
// bit-identical score arrays when shuffling is disabled.
func permute(ids []uint32, rng *rand.Rand) ([]int, []uint32) {
	n := len(ids)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	}
	out := make([]uint32, n)
	for i, p := range perm {
		out[i] = ids[p]
	}
	return perm, out
}
