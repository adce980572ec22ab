package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpoulter/mscanner-sub000/internal/rank"
)

func TestBuildKeyDeterministic(t *testing.T) {
	q := Query{
		Positives: []uint32{3, 1, 2},
		Variant:   "bayesian",
		Params:    rank.Params{Limit: 100, Threshold: 0.5},
	}
	assert.Equal(t, buildKey(q), buildKey(q))
}

func TestBuildKeyIgnoresInputOrder(t *testing.T) {
	a := Query{
		Positives: []uint32{3, 1, 2},
		Variant:   "bayesian",
		Params: rank.Params{
			Limit:   100,
			Exclude: map[uint32]struct{}{7: {}, 5: {}},
		},
	}
	b := Query{
		Positives: []uint32{2, 3, 1},
		Variant:   "bayesian",
		Params: rank.Params{
			Limit:   100,
			Exclude: map[uint32]struct{}{5: {}, 7: {}},
		},
	}
	assert.Equal(t, buildKey(a), buildKey(b))
}

func TestBuildKeyDistinguishesQueries(t *testing.T) {
	base := Query{
		Positives: []uint32{1, 2, 3},
		Variant:   "bayesian",
		Params:    rank.Params{Limit: 100, Threshold: 0.5},
	}
	keys := map[string]string{"base": buildKey(base)}

	q := base
	q.Positives = []uint32{1, 2, 4}
	keys["positives"] = buildKey(q)

	q = base
	q.Variant = "withabsence"
	keys["variant"] = buildKey(q)

	q = base
	q.Params.Limit = 200
	keys["limit"] = buildKey(q)

	q = base
	q.Params.Threshold = 1.5
	keys["threshold"] = buildKey(q)

	q = base
	q.Params.MinDate = 20200101
	keys["minDate"] = buildKey(q)

	q = base
	q.Params.Exclude = map[uint32]struct{}{1: {}}
	keys["exclude"] = buildKey(q)

	seen := map[string]string{}
	for name, key := range keys {
		require.True(t, strings.HasPrefix(key, keyPrefix), name)
		if prior, dup := seen[key]; dup {
			t.Fatalf("queries %q and %q share key %s", prior, name, key)
		}
		seen[key] = name
	}
}

func TestBuildKeyDoesNotMutateQuery(t *testing.T) {
	q := Query{Positives: []uint32{3, 1, 2}, Variant: "bayesian", Params: rank.Params{Limit: 1}}
	buildKey(q)
	assert.Equal(t, []uint32{3, 1, 2}, q.Positives)
}
