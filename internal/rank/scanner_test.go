package rank

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpoulter/mscanner-sub000/internal/store"
	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// buildStream serialises records through the real stream writer and returns
// the raw bytes.
func buildStream(t *testing.T, recs []store.Record) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.stream")
	sw, err := store.OpenStreamWriter(path)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, sw.Append(rec))
	}
	require.NoError(t, sw.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func strategies() []Strategy {
	return []Strategy{NewScalar(), NewBatched(1), NewBatched(3)}
}

func TestScanReturnsAllAboveThreshold(t *testing.T) {
	recs := []store.Record{
		{DocID: 1, Date: 20200101, Features: []uint32{0}},
		{DocID: 2, Date: 20200102, Features: []uint32{1}},
		{DocID: 3, Date: 20200103, Features: []uint32{0, 1}},
		{DocID: 4, Date: 20200104, Features: []uint32{2}},
	}
	data := buildStream(t, recs)
	scores := []float64{2, 1, -5}

	for _, s := range strategies() {
		got, err := s.Scan(context.Background(), bytes.NewReader(data), scores, 0,
			Params{Limit: 10, Threshold: 0.5})
		require.NoError(t, err, s.Name())
		require.Len(t, got, 3, s.Name())
		assert.Equal(t, uint32(3), got[0].DocID)
		assert.Equal(t, uint32(1), got[1].DocID)
		assert.Equal(t, uint32(2), got[2].DocID)
		assert.InDelta(t, 3.0, float64(got[0].Score), 1e-6)
	}
}

func TestScanLimitKeepsTopK(t *testing.T) {
	var recs []store.Record
	for i := uint32(0); i < 100; i++ {
		recs = append(recs, store.Record{DocID: i, Date: 20200101, Features: []uint32{i % 10}})
	}
	data := buildStream(t, recs)
	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = float64(i)
	}

	for _, s := range strategies() {
		got, err := s.Scan(context.Background(), bytes.NewReader(data), scores, 0,
			Params{Limit: 10, Threshold: -1})
		require.NoError(t, err, s.Name())
		require.Len(t, got, 10, s.Name())
		// Only documents with feature 9 score 9; the ten of them fill the
		// result set in ascending doc ID order.
		for i, rec := range got {
			assert.InDelta(t, 9.0, float64(rec.Score), 1e-6)
			assert.Equal(t, uint32(9+10*i), rec.DocID)
		}
	}
}

func TestScanTieBreakAscendingDocID(t *testing.T) {
	recs := []store.Record{
		{DocID: 30, Date: 20200101, Features: []uint32{0}},
		{DocID: 10, Date: 20200101, Features: []uint32{0}},
		{DocID: 20, Date: 20200101, Features: []uint32{0}},
	}
	data := buildStream(t, recs)

	for _, s := range strategies() {
		got, err := s.Scan(context.Background(), bytes.NewReader(data), []float64{1}, 0,
			Params{Limit: 2, Threshold: 0})
		require.NoError(t, err, s.Name())
		require.Len(t, got, 2, s.Name())
		assert.Equal(t, uint32(10), got[0].DocID)
		assert.Equal(t, uint32(20), got[1].DocID)
	}
}

func TestScanFilters(t *testing.T) {
	recs := []store.Record{
		{DocID: 1, Date: 20190101, Features: []uint32{0}},
		{DocID: 2, Date: 20200615, Features: []uint32{0}},
		{DocID: 3, Date: 20210101, Features: []uint32{0}},
		{DocID: 4, Date: 20200616, Features: []uint32{0}},
	}
	data := buildStream(t, recs)
	scores := []float64{1}
	p := Params{
		Limit:   10,
		MinDate: 20200101,
		MaxDate: 20201231,
		Exclude: map[uint32]struct{}{4: {}},
	}

	for _, s := range strategies() {
		got, err := s.Scan(context.Background(), bytes.NewReader(data), scores, 0, p)
		require.NoError(t, err, s.Name())
		require.Len(t, got, 1, s.Name())
		assert.Equal(t, uint32(2), got[0].DocID)
	}
}

func TestScanStrategiesAgree(t *testing.T) {
	var recs []store.Record
	for i := uint32(0); i < 500; i++ {
		features := []uint32{i % 7, 7 + i%5}
		recs = append(recs, store.Record{DocID: i*3 + 1, Date: 20200101 + i%28, Features: features})
	}
	data := buildStream(t, recs)
	scores := []float64{0.4, -1.2, 2.5, 0, -0.3, 1.1, -2, 0.9, -0.1, 0.2, 1.7, -0.8}

	p := Params{Limit: 25, Threshold: 0.5, Exclude: map[uint32]struct{}{1: {}, 4: {}}}
	want, err := NewScalar().Scan(context.Background(), bytes.NewReader(data), scores, 0.1, p)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	for _, s := range []Strategy{NewBatched(1), NewBatched(4), NewBatched(16)} {
		got, err := s.Scan(context.Background(), bytes.NewReader(data), scores, 0.1, p)
		require.NoError(t, err, s.Name())
		assert.Equal(t, want, got, s.Name())
	}
}

func TestScanUnknownFeatureIsPartial(t *testing.T) {
	recs := []store.Record{
		{DocID: 1, Date: 20200101, Features: []uint32{0}},
		{DocID: 2, Date: 20200102, Features: []uint32{9}},
		{DocID: 3, Date: 20200103, Features: []uint32{0}},
	}
	data := buildStream(t, recs)

	for _, s := range strategies() {
		_, err := s.Scan(context.Background(), bytes.NewReader(data), []float64{1}, 0,
			Params{Limit: 10, Threshold: 0})
		require.ErrorIs(t, err, apperrors.ErrPartialResult, s.Name())
		require.ErrorIs(t, err, apperrors.ErrUnknownFeature, s.Name())
	}

	// The scalar path retains everything scored before the bad record.
	got, err := NewScalar().Scan(context.Background(), bytes.NewReader(data), []float64{1}, 0,
		Params{Limit: 10, Threshold: 0})
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(1), got[0].DocID)
}

func TestScanCorruptStreamIsPartial(t *testing.T) {
	recs := []store.Record{
		{DocID: 1, Date: 20200101, Features: []uint32{0}},
		{DocID: 2, Date: 20200102, Features: []uint32{0}},
	}
	data := buildStream(t, recs)
	// Blow out the payload length of the second record header.
	rec1Len := 10 + 1
	data[rec1Len+8] = 0xff
	data[rec1Len+9] = 0xff

	for _, s := range strategies() {
		got, err := s.Scan(context.Background(), bytes.NewReader(data), []float64{1}, 0,
			Params{Limit: 10, Threshold: 0})
		require.ErrorIs(t, err, apperrors.ErrPartialResult, s.Name())
		require.ErrorIs(t, err, apperrors.ErrCorruptStream, s.Name())
		require.Len(t, got, 1, s.Name())
		assert.Equal(t, uint32(1), got[0].DocID)
	}
}

func TestScanBatchedKeepsCorruptionCause(t *testing.T) {
	// A corrupt header aborts the read while the pending batch still holds
	// a record with an unknown feature. Both causes must survive.
	recs := []store.Record{
		{DocID: 1, Date: 20200101, Features: []uint32{9}},
		{DocID: 2, Date: 20200102, Features: []uint32{0}},
	}
	data := buildStream(t, recs)
	rec1Len := 10 + 1
	data[rec1Len+8] = 0xff
	data[rec1Len+9] = 0xff

	_, err := NewBatched(1).Scan(context.Background(), bytes.NewReader(data), []float64{1}, 0,
		Params{Limit: 10, Threshold: 0})
	require.ErrorIs(t, err, apperrors.ErrPartialResult)
	require.ErrorIs(t, err, apperrors.ErrCorruptStream)
	require.ErrorIs(t, err, apperrors.ErrUnknownFeature)
}

func TestScanCancelledContextIsPartial(t *testing.T) {
	recs := []store.Record{{DocID: 1, Date: 20200101, Features: []uint32{0}}}
	data := buildStream(t, recs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range strategies() {
		_, err := s.Scan(ctx, bytes.NewReader(data), []float64{1}, 0,
			Params{Limit: 10})
		require.ErrorIs(t, err, apperrors.ErrPartialResult, s.Name())
	}
}

func TestScanParamsValidation(t *testing.T) {
	for _, s := range strategies() {
		_, err := s.Scan(context.Background(), bytes.NewReader(nil), []float64{1}, 0,
			Params{Limit: 0})
		require.ErrorIs(t, err, apperrors.ErrConfig, s.Name())

		_, err = s.Scan(context.Background(), bytes.NewReader(nil), []float64{1}, 0,
			Params{Limit: 1, MinDate: 20200101, MaxDate: 20190101})
		require.ErrorIs(t, err, apperrors.ErrConfig, s.Name())
	}
}

func TestSelectReturnsStrategy(t *testing.T) {
	require.NotNil(t, Select())
}

func TestWriteScores(t *testing.T) {
	var buf bytes.Buffer
	recs := []ScoreRecord{
		{Score: 1.5, DocID: 11},
		{Score: 3.25, DocID: 7},
	}
	require.NoError(t, WriteScores(&buf, recs))
	assert.Equal(t, "7          3.250000\n11         1.500000\n", buf.String())
}
