// Package rank streams the feature stream once and retains the top-K
// documents by score, subject to date, threshold, and exclusion filters.
package rank

import (
	"container/heap"
	"context"
	"io"
	"math"
	"sort"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// ScoreRecord pairs a document with its score.
type ScoreRecord struct {
	Score float32 `json:"score"`
	DocID uint32  `json:"doc_id"`
}

// Params filters and bounds one ranking scan.
type Params struct {
	// Limit caps the number of results. Must be positive.
	Limit int
	// Threshold drops documents scoring below it.
	Threshold float32
	// MinDate and MaxDate bound record dates as YYYYMMDD integers. A zero
	// MaxDate means unbounded.
	MinDate uint32
	MaxDate uint32
	// Exclude drops specific document IDs, typically the query's own
	// training examples.
	Exclude map[uint32]struct{}
}

func (p Params) validate() error {
	if p.Limit <= 0 {
		return apperrors.Configf("scan limit must be positive, got %d", p.Limit)
	}
	if p.MaxDate != 0 && p.MinDate > p.MaxDate {
		return apperrors.Configf("minDate %d exceeds maxDate %d", p.MinDate, p.MaxDate)
	}
	return nil
}

func (p Params) maxDate() uint32 {
	if p.MaxDate == 0 {
		return math.MaxUint32
	}
	return p.MaxDate
}

// Strategy is one execution backend for the scan. All strategies must
// produce an identical result set for the same inputs; only throughput may
// differ.
type Strategy interface {
	Name() string
	// Scan reads stream records from r, scores them against scores/offset,
	// and returns qualifying documents sorted by decreasing score, ties
	// broken by ascending document ID. On a corrupt record or cancellation
	// it returns the results accumulated so far together with an error
	// wrapping ErrPartialResult.
	Scan(ctx context.Context, r io.Reader, scores []float64, offset float64, p Params) ([]ScoreRecord, error)
}

// collector is the bounded min-structure shared by all strategies: a
// fixed-capacity heap keyed by score that evicts its minimum.
type collector struct {
	h     recordHeap
	limit int
}

func newCollector(limit int) *collector {
	return &collector{h: make(recordHeap, 0, limit+1), limit: limit}
}

// offer inserts the record, evicting the current minimum once the heap is
// full. Replacement follows the full rank order (score, then document ID)
// so the retained set does not depend on arrival order.
func (c *collector) offer(rec ScoreRecord) {
	if len(c.h) < c.limit {
		heap.Push(&c.h, rec)
		return
	}
	min := c.h[0]
	if rec.Score > min.Score || (rec.Score == min.Score && rec.DocID < min.DocID) {
		heap.Push(&c.h, rec)
		heap.Pop(&c.h)
	}
}

// drain empties the heap into a slice sorted by decreasing score, ties by
// ascending document ID.
func (c *collector) drain() []ScoreRecord {
	out := make([]ScoreRecord, len(c.h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&c.h).(ScoreRecord)
	}
	return out
}

type recordHeap []ScoreRecord

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoreRecord))
}

func (h *recordHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// sortRecords orders records by decreasing score, ties by ascending doc ID.
func sortRecords(recs []ScoreRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].DocID < recs[j].DocID
	})
}
