package scoring

import (
	"container/heap"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/gpoulter/mscanner-sub000/internal/catalog"
)

// FeatureStats summarises one engine fit.
type FeatureStats struct {
	FeatsTotal  int
	FeatsMasked int
	FeatsUsed   int

	PosDocs int
	NegDocs int

	PosOccurrences int
	NegOccurrences int
	PosAverage     float64
	NegAverage     float64
	PosDistinct    int
	NegDistinct    int
}

// Stats computes summary statistics for the engine's current fit.
func (e *Engine) Stats() FeatureStats {
	s := FeatureStats{
		FeatsTotal: len(e.scores),
		PosDocs:    e.pdocs,
		NegDocs:    e.ndocs,
	}
	for i := range e.scores {
		masked := e.mask != nil && e.mask[i]
		if masked {
			s.FeatsMasked++
			continue
		}
		s.PosOccurrences += int(e.posCounts[i])
		s.NegOccurrences += int(e.negCounts[i])
		if e.posCounts[i] != 0 {
			s.PosDistinct++
		}
		if e.negCounts[i] != 0 {
			s.NegDistinct++
		}
	}
	s.FeatsUsed = s.FeatsTotal - s.FeatsMasked
	if e.pdocs > 0 {
		s.PosAverage = float64(s.PosOccurrences) / float64(e.pdocs)
	}
	if e.ndocs > 0 {
		s.NegAverage = float64(s.NegOccurrences) / float64(e.ndocs)
	}
	return s
}

// TFIDF returns per-feature TF-IDF where term frequency treats the positive
// corpus as one large document and document frequency counts each document
// separately. Zero-frequency features score zero.
func (e *Engine) TFIDF() []float64 {
	out := make([]float64, len(e.scores))
	var posTotal float64
	for _, c := range e.posCounts {
		posTotal += c
	}
	if posTotal == 0 {
		return out
	}
	n := float64(e.pdocs + e.ndocs)
	for i := range out {
		df := e.posCounts[i] + e.negCounts[i]
		if df == 0 {
			continue
		}
		out[i] = (e.posCounts[i] / posTotal) * math.Log(n/df)
	}
	return out
}

// TFIDFEntry is one row of the best-TFIDF listing.
type TFIDFEntry struct {
	ID       uint32
	TFIDF    float64
	Name     string
	Type     string
	Score    float64
	PosCount float64
	NegCount float64
}

// BestTFIDF returns up to count features with the highest TF-IDF, in
// decreasing order.
func (e *Engine) BestTFIDF(count int, cat *catalog.Catalog) []TFIDFEntry {
	tfidf := e.TFIDF()
	h := &tfidfHeap{}
	heap.Init(h)
	for i, v := range tfidf {
		heap.Push(h, tfidfItem{id: uint32(i), tfidf: v})
		if h.Len() > count {
			heap.Pop(h)
		}
	}
	entries := make([]TFIDFEntry, h.Len())
	for i := len(entries) - 1; i >= 0; i-- {
		item := heap.Pop(h).(tfidfItem)
		name, ftype, err := cat.NameOf(item.id)
		if err != nil {
			name, ftype = "?", "?"
		}
		entries[i] = TFIDFEntry{
			ID:       item.id,
			TFIDF:    item.tfidf,
			Name:     name,
			Type:     ftype,
			Score:    e.scores[item.id],
			PosCount: e.posCounts[item.id],
			NegCount: e.negCounts[item.id],
		}
	}
	return entries
}

type tfidfItem struct {
	id    uint32
	tfidf float64
}

type tfidfHeap []tfidfItem

func (h tfidfHeap) Len() int { return len(h) }

func (h tfidfHeap) Less(i, j int) bool {
	if h[i].tfidf != h[j].tfidf {
		return h[i].tfidf < h[j].tfidf
	}
	return h[i].id > h[j].id
}

func (h tfidfHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *tfidfHeap) Push(x interface{}) {
	*h = append(*h, x.(tfidfItem))
}

func (h *tfidfHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// WriteCSV writes every feature's score breakdown in decreasing score order:
// score, class counts, pseudocount, the score fraction, and the feature
// identity.
func (e *Engine) WriteCSV(w io.Writer, cat *catalog.Catalog) error {
	cw := csv.NewWriter(w)
	header := []string{
		"score", "positives", "negatives", "pseudocount",
		"numerator", "denominator", "termid", "type", "term",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	order := make([]int, len(e.scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if e.scores[order[a]] != e.scores[order[b]] {
			return e.scores[order[a]] > e.scores[order[b]]
		}
		return order[a] < order[b]
	})
	for _, i := range order {
		name, ftype, err := cat.NameOf(uint32(i))
		if err != nil {
			return err
		}
		row := []string{
			strconv.FormatFloat(e.scores[i], 'f', 5, 64),
			strconv.Itoa(int(e.posCounts[i])),
			strconv.Itoa(int(e.negCounts[i])),
			strconv.FormatFloat(e.pseudo[i], 'g', -1, 64),
			strconv.FormatFloat(e.pfreqs[i], 'g', -1, 64),
			strconv.FormatFloat(e.nfreqs[i], 'g', -1, 64),
			strconv.Itoa(i),
			ftype,
			name,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}
