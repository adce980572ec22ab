package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gpoulter/mscanner-sub000/internal/catalog"
	"github.com/gpoulter/mscanner-sub000/internal/results"
	"github.com/gpoulter/mscanner-sub000/internal/scoring"
	"github.com/gpoulter/mscanner-sub000/internal/stats"
	"github.com/gpoulter/mscanner-sub000/internal/store"
	"github.com/gpoulter/mscanner-sub000/internal/validate"
	"github.com/gpoulter/mscanner-sub000/pkg/config"
	"github.com/gpoulter/mscanner-sub000/pkg/logger"
	"github.com/gpoulter/mscanner-sub000/pkg/metrics"
	"github.com/gpoulter/mscanner-sub000/pkg/postgres"
	"github.com/gpoulter/mscanner-sub000/pkg/resilience"
	"github.com/gpoulter/mscanner-sub000/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	positivesPath := flag.String("positives", "", "file with one positive document ID per line")
	negativesPath := flag.String("negatives", "", "optional negative ID file; sampled from the corpus when absent")
	reportPath := flag.String("report", "-", "performance report destination ('-' for stdout)")
	csvPath := flag.String("csv", "", "optional feature score CSV destination")
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

	if err := run(ctx, cfg, m, *positivesPath, *negativesPath, *reportPath, *csvPath); err != nil {
		slog.Error("validation failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, m *metrics.Metrics,
	positivesPath, negativesPath, reportPath, csvPath string) error {

	ctx, span := tracing.StartSpan(ctx, "validate", fmt.Sprintf("validate-%d", time.Now().UnixNano()))
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
	negatives, err := loadNegatives(cfg, fs, positives, negativesPath)
	if err != nil {
		return err
	}
	span.SetAttr("positives", len(positives))
	span.SetAttr("negatives", len(negatives))

	variant, err := scoring.ParseVariant(cfg.Scoring.Variant)
	if err != nil {
		return err
	}
	posCounts, err := scoring.Counts(cat.Len(), fs, positives)
	if err != nil {
		return fmt.Errorf("counting positive features: %w", err)
	}
	negCounts, err := scoring.Counts(cat.Len(), fs, negatives)
	if err != nil {
		return fmt.Errorf("counting negative features: %w", err)
	}
	mask := scoring.BuildMask(posCounts, negCounts, len(positives), len(negatives), scoring.MaskOptions{
		TypeMask:      cat.TypeMask(cfg.Scoring.ExcludeTypes),
		MinCount:      cfg.Scoring.MinCount,
		PositivesOnly: cfg.Scoring.PositivesOnly,
	})

	validator := &validate.Validator{
		Src:         fs,
		NumFeatures: cat.Len(),
		Background:  cat.BackgroundFreqs(),
		Opts: scoring.Options{
			Variant:     variant,
			Pseudocount: cfg.Scoring.Pseudocount,
			Mask:        mask,
		},
		Positives: positives,
		Negatives: negatives,
		NFolds:    cfg.Validation.NFolds,
		Seed:      cfg.Validation.Seed,
		Shuffle:   cfg.Validation.Shuffle,
	}

	mode := "kfold"
	if cfg.Validation.NFolds == 0 {
		mode = "leave-one-out"
	}
	_, runSpan := tracing.StartChildSpan(ctx, "folds")
	start := time.Now()
	res, err := validator.Run(ctx)
	runSpan.End()
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	m.ValidationDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.ValidationFoldsTotal.Add(float64(cfg.Validation.NFolds))

	analyzer, err := stats.New(res.PScores, res.NScores, cfg.Validation.Alpha)
	if err != nil {
		return err
	}
	span.SetAttr("roc_area", analyzer.W)

	if err := writeReport(reportPath, analyzer); err != nil {
		return err
	}
	if csvPath != "" {
		if err := writeFeatureCSV(csvPath, res.Final, cat); err != nil {
			return err
		}
	}
	saveRun(ctx, cfg, analyzer, variant, len(positives), len(negatives), elapsed)
	return nil
}

// loadNegatives reads the negative ID file, or samples the configured
// number of corpus documents outside the positive set.
func loadNegatives(cfg *config.Config, fs *store.Store, positives []uint32, path string) ([]uint32, error) {
	if path != "" {
		return store.ReadDocIDs(path)
	}
	exclude := make(map[uint32]struct{}, len(positives))
	for _, id := range positives {
		exclude[id] = struct{}{}
	}
	rng := rand.New(rand.NewSource(cfg.Validation.Seed))
	negatives, err := validate.RandomSubset(cfg.Validation.Negatives, fs.DocIDs(), exclude, rng)
	if err != nil {
		return nil, err
	}
	slog.Info("sampled negatives from corpus", "count", len(negatives))
	return negatives, nil
}

func writeReport(path string, a *stats.Analyzer) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "positives:          %d\n", a.P)
	fmt.Fprintf(bw, "negatives:          %d\n", a.N)
	fmt.Fprintf(bw, "roc_area (W):       %.6f\n", a.W)
	fmt.Fprintf(bw, "roc_stderr:         %.6f\n", a.WStdErr)
	fmt.Fprintf(bw, "roc_area_trapz:     %.6f\n", a.ROCArea)
	fmt.Fprintf(bw, "pr_area:            %.6f\n", a.PRArea)
	fmt.Fprintf(bw, "averaged_precision: %.6f\n", a.AvPrec)
	fmt.Fprintf(bw, "breakeven:          %.6f\n", a.Breakeven)
	fmt.Fprintf(bw, "tuned_threshold:    %f\n", a.Threshold)
	t := a.Tuned
	fmt.Fprintf(bw, "tuned: TP=%d FN=%d TN=%d FP=%d\n", t.TP, t.FN, t.TN, t.FP)
	fmt.Fprintf(bw, "tuned: recall=%.4f precision=%.4f specificity=%.4f\n", t.TPR, t.PPV, t.TNR)
	fmt.Fprintf(bw, "tuned: accuracy=%.4f prevalence=%.4f enrichment=%.2f\n", t.Accuracy, t.Prevalence, t.Enrichment)
	fmt.Fprintf(bw, "tuned: fmeasure=%.4f fmeasure_alpha=%.4f fmeasure_max=%.4f\n", t.FMeasure, t.FMeasureAlpha, t.FMeasureMax)
	return bw.Flush()
}

func writeFeatureCSV(path string, engine *scoring.Engine, cat *catalog.Catalog) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating feature CSV: %w", err)
	}
	defer f.Close()
	return engine.WriteCSV(f, cat)
}

// saveRun records the validation summary in Postgres when reachable.
func saveRun(ctx context.Context, cfg *config.Config, a *stats.Analyzer,
	variant scoring.Variant, positives, negatives int, elapsed time.Duration) {

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, run not recorded", "error", err)
		return
	}
	defer db.Close()

	runStore := results.NewStore(db)
	summary := results.ValidationSummary{
		Positives: positives,
		Negatives: negatives,
		NFolds:    cfg.Validation.NFolds,
		Variant:   variant.String(),
		W:         a.W,
		WStdErr:   a.WStdErr,
		PRArea:    a.PRArea,
		AvPrec:    a.AvPrec,
		Breakeven: a.Breakeven,
		Tuned:     a.Tuned,
		Elapsed:   elapsed.Seconds(),
	}
	runParams := map[string]any{
		"nfolds": cfg.Validation.NFolds,
		"alpha":  cfg.Validation.Alpha,
		"seed":   cfg.Validation.Seed,
	}
	err = resilience.Retry(ctx, "save-validation-run", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		_, err := runStore.SaveValidationRun(ctx, runParams, summary)
		return err
	})
	if err != nil {
		slog.Warn("failed to record run history", "error", err)
	}
}
