package rank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gpoulter/mscanner-sub000/internal/store"
	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Select probes the environment once at startup and returns the fastest
// applicable strategy. The batched backend needs spare CPUs to pay for its
// buffering; otherwise the scalar loop wins. Both produce identical result
// sets, so falling back is always safe.
func Select() Strategy {
	if runtime.GOMAXPROCS(0) > 1 {
		return NewBatched(0)
	}
	return NewScalar()
}

// cancelCheckInterval is how many records pass between context checks in the
// scan hot loop.
const cancelCheckInterval = 1024

// skip applies the date and exclusion filters to one record.
func skip(rec store.Record, p Params, maxDate uint32) bool {
	if rec.Date < p.MinDate || rec.Date > maxDate {
		return true
	}
	if p.Exclude != nil {
		if _, drop := p.Exclude[rec.DocID]; drop {
			return true
		}
	}
	return false
}

// scoreRecord sums the feature scores of one record.
func scoreRecord(rec store.Record, scores []float64, offset float64) (float32, error) {
	score := offset
	for _, fid := range rec.Features {
		if int(fid) >= len(scores) {
			return 0, fmt.Errorf("doc %d references feature %d of %d: %w",
				rec.DocID, fid, len(scores), apperrors.ErrUnknownFeature)
		}
		score += scores[fid]
	}
	return float32(score), nil
}

// Scalar scans one record at a time in a single goroutine.
type Scalar struct {
	logger *slog.Logger
}

// NewScalar creates the scalar scan strategy.
func NewScalar() *Scalar {
	return &Scalar{logger: slog.Default().With("component", "scan-scalar")}
}

func (s *Scalar) Name() string { return "scalar" }

func (s *Scalar) Scan(ctx context.Context, r io.Reader, scores []float64, offset float64, p Params) ([]ScoreRecord, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	sr := store.NewStreamReader(r)
	coll := newCollector(p.Limit)
	maxDate := p.maxDate()
	scanned := 0
	for {
		if scanned%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return coll.drain(), apperrors.Partial(err)
			}
		}
		rec, err := sr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Error("scan aborted", "scanned", scanned, "error", err)
			return coll.drain(), apperrors.Partial(err)
		}
		scanned++
		if skip(rec, p, maxDate) {
			continue
		}
		score, err := scoreRecord(rec, scores, offset)
		if err != nil {
			s.logger.Error("scan aborted", "scanned", scanned, "error", err)
			return coll.drain(), apperrors.Partial(err)
		}
		if score >= p.Threshold {
			coll.offer(ScoreRecord{Score: score, DocID: rec.DocID})
		}
	}
	s.logger.Debug("scan complete", "scanned", scanned)
	return coll.drain(), nil
}

// Batched reads records in blocks and scores each block across worker
// goroutines. Reading stays sequential; only the read-only score summation
// is parallel, so the result set matches the scalar strategy exactly.
type Batched struct {
	workers   int
	batchSize int
	logger    *slog.Logger
}

// NewBatched creates the batched strategy with the given worker count.
// Zero means one worker per CPU.
func NewBatched(workers int) *Batched {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Batched{
		workers:   workers,
		batchSize: 4096,
		logger:    slog.Default().With("component", "scan-batched"),
	}
}

func (b *Batched) Name() string { return "batched" }

func (b *Batched) Scan(ctx context.Context, r io.Reader, scores []float64, offset float64, p Params) ([]ScoreRecord, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	sr := store.NewStreamReader(r)
	coll := newCollector(p.Limit)
	maxDate := p.maxDate()
	batch := make([]store.Record, 0, b.batchSize)
	scanned := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		chunks := chunkRanges(len(batch), b.workers)
		candidates := make([][]ScoreRecord, len(chunks))
		g, _ := errgroup.WithContext(ctx)
		for ci, ch := range chunks {
			ci, ch := ci, ch
			g.Go(func() error {
				local := make([]ScoreRecord, 0, ch.hi-ch.lo)
				for _, rec := range batch[ch.lo:ch.hi] {
					score, err := scoreRecord(rec, scores, offset)
					if err != nil {
						return err
					}
					if score >= p.Threshold {
						local = append(local, ScoreRecord{Score: score, DocID: rec.DocID})
					}
				}
				candidates[ci] = local
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		// Merge in batch order so heap eviction sees the same sequence
		// regardless of worker scheduling.
		for _, local := range candidates {
			for _, rec := range local {
				coll.offer(rec)
			}
		}
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return coll.drain(), apperrors.Partial(err)
		}
		rec, err := sr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ferr := flush(); ferr != nil {
				err = errors.Join(err, ferr)
			}
			b.logger.Error("scan aborted", "scanned", scanned, "error", err)
			return coll.drain(), apperrors.Partial(err)
		}
		scanned++
		if skip(rec, p, maxDate) {
			continue
		}
		batch = append(batch, rec)
		if len(batch) == b.batchSize {
			if err := flush(); err != nil {
				b.logger.Error("scan aborted", "scanned", scanned, "error", err)
				return coll.drain(), apperrors.Partial(err)
			}
		}
	}
	if err := flush(); err != nil {
		b.logger.Error("scan aborted", "scanned", scanned, "error", err)
		return coll.drain(), apperrors.Partial(err)
	}
	b.logger.Debug("scan complete", "scanned", scanned, "workers", b.workers)
	return coll.drain(), nil
}

type chunkRange struct{ lo, hi int }

// chunkRanges splits n items into at most k contiguous ranges of nearly
// equal size.
func chunkRanges(n, k int) []chunkRange {
	if k > n {
		k = n
	}
	base, rem := n/k, n%k
	ranges := make([]chunkRange, 0, k)
	lo := 0
	for i := 0; i < k; i++ {
		size := base
		if i < rem {
			size++
		}
		ranges = append(ranges, chunkRange{lo: lo, hi: lo + size})
		lo += size
	}
	return ranges
}
