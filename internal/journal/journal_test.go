package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/lenstree/internal/save"
)

func TestRecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	ctx := context.Background()
	t0 := time.Unix(1700000000, 0)
	require.NoError(t, j.Record(ctx, t0, save.Outcome{File: "/etc/hosts", State: save.Committed}))
	require.NoError(t, j.Record(ctx, t0.Add(time.Second), save.Outcome{
		File: "/fake", State: save.Failed, Kind: "no_lens", Err: errors.New("no lens for /fake"),
	}))
	require.NoError(t, j.Record(ctx, t0.Add(2*time.Second), save.Outcome{File: "/etc/hosts", State: save.Deleted}))

	all, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "deleted", all[0].State)
	assert.Equal(t, "no_lens", all[1].Kind)
	assert.Equal(t, "no lens for /fake", all[1].Error)
	assert.True(t, all[2].At.Equal(t0))

	hosts, err := j.Recent(ctx, "/etc/hosts", 1)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "deleted", hosts[0].State)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), time.Now(), save.Outcome{File: "/etc/shells", State: save.Committed}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()
	got, err := j.Recent(context.Background(), "", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/etc/shells", got[0].File)
}
