// Package cache keeps ranked query results in Redis so repeated queries
// against an unchanged corpus skip the full-corpus scan.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gpoulter/mscanner-sub000/internal/rank"
	"github.com/gpoulter/mscanner-sub000/pkg/config"
	pkgredis "github.com/gpoulter/mscanner-sub000/pkg/redis"
)

const keyPrefix = "rank:"

// Query identifies one ranking request for cache-key purposes: the training
// examples and scoring variant fix the score table, and the scan parameters
// fix the filtering.
type Query struct {
	Positives []uint32
	Variant   string
	Params    rank.Params
}

// ResultCache caches ranked result sets keyed by a query fingerprint.
// Concurrent identical misses are collapsed so the corpus is scanned once.
type ResultCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a ResultCache over an existing Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "result-cache"),
	}
}

// Get returns the cached results for q, or ok=false on a miss.
func (c *ResultCache) Get(ctx context.Context, q Query) ([]rank.ScoreRecord, bool) {
	key := buildKey(q)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var recs []rank.ScoreRecord
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key, "results", len(recs))
	return recs, true
}

// Set stores the results for q with the configured TTL. Failures are logged
// and swallowed since the cache is best-effort.
func (c *ResultCache) Set(ctx context.Context, q Query, recs []rank.ScoreRecord) {
	key := buildKey(q)
	data, err := json.Marshal(recs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results when present, otherwise runs computeFn
// once per key across concurrent callers and caches its result. The second
// return reports whether the cache served the results.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	q Query,
	computeFn func() ([]rank.ScoreRecord, error),
) ([]rank.ScoreRecord, bool, error) {
	if recs, ok := c.Get(ctx, q); ok {
		return recs, true, nil
	}
	key := buildKey(q)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if recs, ok := c.Get(ctx, q); ok {
			return recs, nil
		}
		recs, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, q, recs)
		return recs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]rank.ScoreRecord), false, nil
}

// Invalidate removes every cached result set. Called after the corpus
// changes, since any stored ranking may be stale.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since startup.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the query fingerprint into a fixed-size Redis key. The
// positive set is sorted first so equivalent queries share a key.
func buildKey(q Query) string {
	pos := make([]uint32, len(q.Positives))
	copy(pos, q.Positives)
	sort.Slice(pos, func(i, j int) bool { return pos[i] < pos[j] })

	h := sha256.New()
	var buf [4]byte
	for _, id := range pos {
		binary.LittleEndian.PutUint32(buf[:], id)
		h.Write(buf[:])
	}
	fmt.Fprintf(h, "|%s|limit=%d|threshold=%g|dates=%d-%d",
		q.Variant, q.Params.Limit, q.Params.Threshold, q.Params.MinDate, q.Params.MaxDate)
	excl := make([]uint32, 0, len(q.Params.Exclude))
	for id := range q.Params.Exclude {
		excl = append(excl, id)
	}
	sort.Slice(excl, func(i, j int) bool { return excl[i] < excl[j] })
	for _, id := range excl {
		binary.LittleEndian.PutUint32(buf[:], id)
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
