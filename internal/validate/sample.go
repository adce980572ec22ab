package validate

import (
	"math/rand"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// RandomSubset draws k distinct IDs from pool, skipping members of exclude.
// Used to sample a negative class from the corpus when the caller supplies
// only positives. The pool slice is not modified.
func RandomSubset(k int, pool []uint32, exclude map[uint32]struct{}, rng *rand.Rand) ([]uint32, error) {
	candidates := make([]uint32, 0, len(pool))
	for _, id := range pool {
		if _, skip := exclude[id]; !skip {
			candidates = append(candidates, id)
		}
	}
	if k > len(candidates) {
		return nil, apperrors.Configf("cannot sample %d from %d eligible documents", k, len(candidates))
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:k], nil
}
