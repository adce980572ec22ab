package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

func TestStoreAddGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.stream")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	// Features arrive unsorted and come back sorted.
	require.NoError(t, s.Add(42, 20070101, []uint32{9, 1, 5}))
	vec, err := s.Get(42)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 5, 9}, vec)

	date, err := s.Date(42)
	require.NoError(t, err)
	assert.Equal(t, uint32(20070101), date)

	_, err = s.Get(43)
	require.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestStoreRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.stream")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(1, 20070101, []uint32{0}))
	err = s.Add(1, 20070202, []uint32{1})
	require.ErrorIs(t, err, apperrors.ErrDocumentExists)
	assert.Equal(t, 1, s.Len())
}

func TestStoreReopenReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.stream")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(1, 20070101, []uint32{2, 4}))
	require.NoError(t, s.Add(2, 20070102, []uint32{1, 3}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []uint32{1, 2}, s.DocIDs())
	vec, err := s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, vec)
}

func TestDateRoundTrip(t *testing.T) {
	date := DateToInt(2006, 3, 14)
	assert.Equal(t, uint32(20060314), date)
	y, m, d := DateFromInt(date)
	assert.Equal(t, 2006, y)
	assert.Equal(t, 3, m)
	assert.Equal(t, 14, d)
}

func TestReadDocIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	content := "# training set\n123\n\n456\n789\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ids, err := ReadDocIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{123, 456, 789}, ids)

	require.NoError(t, os.WriteFile(path, []byte("12\nnot-a-number\n"), 0644))
	_, err = ReadDocIDs(path)
	require.Error(t, err)
}
