package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gpoulter/mscanner-sub000/internal/catalog"
	"github.com/gpoulter/mscanner-sub000/internal/rank"
	"github.com/gpoulter/mscanner-sub000/internal/rank/cache"
	"github.com/gpoulter/mscanner-sub000/internal/results"
	"github.com/gpoulter/mscanner-sub000/internal/scoring"
	"github.com/gpoulter/mscanner-sub000/internal/store"
	"github.com/gpoulter/mscanner-sub000/pkg/config"
	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
	"github.com/gpoulter/mscanner-sub000/pkg/logger"
	"github.com/gpoulter/mscanner-sub000/pkg/metrics"
	"github.com/gpoulter/mscanner-sub000/pkg/postgres"
	pkgredis "github.com/gpoulter/mscanner-sub000/pkg/redis"
	"github.com/gpoulter/mscanner-sub000/pkg/resilience"
	"github.com/gpoulter/mscanner-sub000/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	positivesPath := flag.String("positives", "", "file with one positive document ID per line")
	outputPath := flag.String("output", "-", "score report destination ('-' for stdout)")
	csvPath := flag.String("csv", "", "optional feature score CSV destination")
	strategyName := flag.String("strategy", "auto", "scan strategy: auto, scalar, or batched")
	noCache := flag.Bool("nocache", false, "bypass the Redis result cache")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)

	if *positivesPath == "" {
		slog.Error("missing required -positives flag")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	if err := run(ctx, cfg, m, *positivesPath, *outputPath, *csvPath, *strategyName, *noCache); err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, m *metrics.Metrics,
	positivesPath, outputPath, csvPath, strategyName string, noCache bool) error {

	ctx, span := tracing.StartSpan(ctx, "query", fmt.Sprintf("query-%d", time.Now().UnixNano()))
	defer span.Log()
	defer span.End()

	cat, err := catalog.New(cfg.Data.CatalogPath())
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	fs, err := store.Open(cfg.Data.StreamPath())
	if err != nil {
		return fmt.Errorf("opening feature store: %w", err)
	}
	defer fs.Close()
	m.CorpusDocuments.Set(float64(fs.Len()))
	m.CatalogFeatures.Set(float64(cat.Len()))

	positives, err := store.ReadDocIDs(positivesPath)
	if err != nil {
		return err
	}
	span.SetAttr("positives", len(positives))
	span.SetAttr("corpus", fs.Len())

	engine, err := fitEngine(ctx, cfg, cat, fs, positives)
	if err != nil {
		return err
	}
	if degen := engine.Degenerate(); len(degen) > 0 {
		slog.Warn("non-finite feature scores", "features", len(degen))
	}

	exclude := make(map[uint32]struct{}, len(positives))
	for _, id := range positives {
		exclude[id] = struct{}{}
	}
	params := rank.Params{
		Limit:     cfg.Query.Limit,
		Threshold: cfg.Query.Threshold,
		MinDate:   cfg.Query.MinDate,
		MaxDate:   cfg.Query.MaxDate,
		Exclude:   exclude,
	}
	strategy, err := pickStrategy(strategyName)
	if err != nil {
		return err
	}

	scanStart := time.Now()
	recs, cached, scanErr := scanCorpus(ctx, cfg, m, engine, strategy, params, positives, noCache)
	elapsed := time.Since(scanStart)
	if scanErr != nil && !errors.Is(scanErr, apperrors.ErrPartialResult) {
		return scanErr
	}
	if scanErr != nil {
		m.StreamErrorsTotal.WithLabelValues("scan").Inc()
		slog.Warn("reporting partial results", "error", scanErr, "results", len(recs))
	}
	m.ScanResultsCount.Observe(float64(len(recs)))
	if !cached {
		m.DocsScannedTotal.Add(float64(fs.Len()))
	}
	span.SetAttr("results", len(recs))
	span.SetAttr("cached", cached)

	if err := writeReport(outputPath, recs); err != nil {
		return err
	}
	if csvPath != "" {
		if err := writeFeatureCSV(csvPath, engine, cat); err != nil {
			return err
		}
	}
	saveRun(ctx, cfg, engine, params, recs, positives, fs.Len(), cached, elapsed)
	return scanErr
}

// fitEngine computes feature scores for the positive set against the whole
// corpus, which serves as the negative class.
func fitEngine(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, fs *store.Store, positives []uint32) (*scoring.Engine, error) {
	_, span := tracing.StartChildSpan(ctx, "fit")
	defer span.End()

	posCounts, err := scoring.Counts(cat.Len(), fs, positives)
	if err != nil {
		return nil, fmt.Errorf("counting positive features: %w", err)
	}
	negCounts := make([]float64, cat.Len())
	for i, c := range cat.Counts() {
		negCounts[i] = float64(c)
	}
	pdocs, ndocs := len(positives), int(cat.NumDocs())

	variant, err := scoring.ParseVariant(cfg.Scoring.Variant)
	if err != nil {
		return nil, err
	}
	mask := scoring.BuildMask(posCounts, negCounts, pdocs, ndocs, scoring.MaskOptions{
		TypeMask:      cat.TypeMask(cfg.Scoring.ExcludeTypes),
		MinCount:      cfg.Scoring.MinCount,
		PositivesOnly: cfg.Scoring.PositivesOnly,
	})
	engine, err := scoring.NewEngine(cat.Len(), cat.BackgroundFreqs(), scoring.Options{
		Variant:     variant,
		Pseudocount: cfg.Scoring.Pseudocount,
		Mask:        mask,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Update(posCounts, negCounts, pdocs, ndocs); err != nil {
		return nil, err
	}
	return engine, nil
}

func pickStrategy(name string) (rank.Strategy, error) {
	switch name {
	case "auto":
		return rank.Select(), nil
	case "scalar":
		return rank.NewScalar(), nil
	case "batched":
		return rank.NewBatched(0), nil
	default:
		return nil, apperrors.Configf("unknown scan strategy %q", name)
	}
}

// scanCorpus runs the full-corpus scan, going through the Redis result
// cache when it is reachable.
func scanCorpus(ctx context.Context, cfg *config.Config, m *metrics.Metrics,
	engine *scoring.Engine, strategy rank.Strategy, params rank.Params,
	positives []uint32, noCache bool) ([]rank.ScoreRecord, bool, error) {

	ctx, span := tracing.StartChildSpan(ctx, "scan")
	defer span.End()
	span.SetAttr("strategy", strategy.Name())

	scan := func() ([]rank.ScoreRecord, error) {
		f, err := os.Open(cfg.Data.StreamPath())
		if err != nil {
			return nil, fmt.Errorf("opening feature stream: %w", err)
		}
		defer f.Close()
		start := time.Now()
		recs, err := strategy.Scan(ctx, f, engine.Scores(), engine.Offset(), params)
		m.ScanDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
		return recs, err
	}

	if noCache {
		recs, err := scan()
		return recs, false, err
	}
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, scanning uncached", "error", err)
		recs, err := scan()
		return recs, false, err
	}
	defer redisClient.Close()

	rc := cache.New(redisClient, cfg.Redis)
	recs, cached, err := rc.GetOrCompute(ctx, cache.Query{
		Positives: positives,
		Variant:   engine.Variant().String(),
		Params:    params,
	}, scan)
	if cached {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
	return recs, cached, err
}

func writeReport(path string, recs []rank.ScoreRecord) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating score report: %w", err)
		}
		defer f.Close()
		w = f
	}
	return rank.WriteScores(w, recs)
}

func writeFeatureCSV(path string, engine *scoring.Engine, cat *catalog.Catalog) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating feature CSV: %w", err)
	}
	defer f.Close()
	return engine.WriteCSV(f, cat)
}

// querySummary builds the run-history summary for one completed query.
func querySummary(engine *scoring.Engine, params rank.Params,
	recs []rank.ScoreRecord, positives []uint32, corpus int, cached bool, elapsed time.Duration) results.QuerySummary {

	return results.QuerySummary{
		Positives: len(positives),
		Corpus:    corpus,
		Results:   len(recs),
		Variant:   engine.Variant().String(),
		Threshold: params.Threshold,
		Cached:    cached,
		Elapsed:   elapsed.Seconds(),
	}
}

// saveRun records the run in Postgres when it is reachable. History is
// best-effort: a missing database logs a warning and nothing else.
func saveRun(ctx context.Context, cfg *config.Config, engine *scoring.Engine,
	params rank.Params, recs []rank.ScoreRecord, positives []uint32, corpus int,
	cached bool, elapsed time.Duration) {

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, run not recorded", "error", err)
		return
	}
	defer db.Close()

	runStore := results.NewStore(db)
	summary := querySummary(engine, params, recs, positives, corpus, cached, elapsed)
	runParams := map[string]any{
		"positives": positives,
		"limit":     params.Limit,
		"threshold": params.Threshold,
		"min_date":  params.MinDate,
		"max_date":  params.MaxDate,
	}
	err = resilience.Retry(ctx, "save-query-run", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		_, err := runStore.SaveQueryRun(ctx, runParams, summary, recs)
		return err
	})
	if err != nil {
		slog.Warn("failed to record run history", "error", err)
	}
}
