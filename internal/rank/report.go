package rank

import (
	"bufio"
	"fmt"
	"io"
)

// WriteScores writes one "docid score" line per record in rank order. The
// input is re-sorted so callers may pass records from any source.
func WriteScores(w io.Writer, recs []ScoreRecord) error {
	sorted := make([]ScoreRecord, len(recs))
	copy(sorted, recs)
	sortRecords(sorted)
	bw := bufio.NewWriter(w)
	for _, rec := range sorted {
		if _, err := fmt.Fprintf(bw, "%-10d %f\n", rec.DocID, rec.Score); err != nil {
			return fmt.Errorf("write score line: %w", err)
		}
	}
	return bw.Flush()
}
