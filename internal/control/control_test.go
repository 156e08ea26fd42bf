package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOrCreate_SharesGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "lenstree.ctl")
	a, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Zero(t, a.Generation())
	assert.True(t, a.SavedAt().IsZero())

	at := time.Unix(1700000000, 0)
	assert.Equal(t, uint64(1), a.Bump(at))
	assert.Equal(t, uint64(1), b.Generation())
	assert.True(t, at.Equal(b.SavedAt()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(BlockSize), info.Size())
}

func TestOpenOrCreate_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lenstree.ctl")
	a, err := OpenOrCreate(path)
	require.NoError(t, err)
	a.Bump(time.Now())
	a.Bump(time.Now())
	require.NoError(t, a.Close())

	b, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	assert.Equal(t, uint64(2), b.Generation())
}

func TestOpenOrCreate_RejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, []byte("not a control block"), 0o644))
	_, err := OpenOrCreate(path)
	require.ErrorIs(t, err, ErrBadMagic)
	assert.Contains(t, err.Error(), "magic 20746f6e")
}

func TestLock_Excludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lenstree.ctl")
	a, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := OpenOrCreate(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Lock(ctx), context.DeadlineExceeded)

	require.NoError(t, a.Unlock())
	require.NoError(t, b.Lock(context.Background()))
	require.NoError(t, b.Unlock())
}
