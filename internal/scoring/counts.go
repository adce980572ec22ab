package scoring

// VectorSource supplies the stored feature vector of a document.
type VectorSource interface {
	Get(docID uint32) ([]uint32, error)
}

// Counts tallies, for each feature, the number of listed documents whose
// vector contains it. Duplicate IDs within one vector are counted once per
// occurrence, matching the stored non-decreasing vectors which never repeat
// an ID.
func Counts(nfeats int, src VectorSource, docIDs []uint32) ([]float64, error) {
	counts := make([]float64, nfeats)
	for _, docID := range docIDs {
		vec, err := src.Get(docID)
		if err != nil {
			return nil, err
		}
		for _, fid := range vec {
			if int(fid) >= nfeats {
				return nil, unknownFeature(fid, nfeats)
			}
			counts[fid]++
		}
	}
	return counts, nil
}

// SubCounts returns a-b elementwise. Slices must be the same length.
func SubCounts(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
