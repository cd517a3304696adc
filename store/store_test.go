package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStoreOffsetRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "calibration.db"))

	_, ok, err := s.OffsetSteps("ttyUSB0/a")
	require.NoError(t, err)
	assert.False(t, ok, "fresh store has no calibration")

	require.NoError(t, s.PutOffsetSteps("ttyUSB0/a", 31))

	steps, ok, err := s.OffsetSteps("ttyUSB0/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 31, steps)
}

func TestStoreChainLengthRoundTrip(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "calibration.db"))

	require.NoError(t, s.PutChainLength("ttyUSB0", 3))

	n, ok, err := s.ChainLength("ttyUSB0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok, err = s.ChainLength("ttyUSB1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.PutOffsetSteps("ttyUSB0/b", 18))
	require.NoError(t, s.Close())

	reopened := openStore(t, path)

	steps, ok, err := reopened.OffsetSteps("ttyUSB0/b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 18, steps)
}

func TestStoreKeysDoNotCollide(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "calibration.db"))

	require.NoError(t, s.PutOffsetSteps("bus", 10))
	require.NoError(t, s.PutChainLength("bus", 2))

	steps, ok, err := s.OffsetSteps("bus")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, steps)

	n, ok, err := s.ChainLength("bus")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, n)
}
