package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/zeverrelay/pkg/types"
)

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "My Roof database.csv"), PathFor("/data", "My Roof"))
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 13, 5, 0, 0, time.UTC)

	t.Run("header once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", PathFor("", "Roof"))
		r := New(path)
		assert.Equal(t, path, r.Path())

		created, err := r.Ensure(ctx)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = r.Ensure(ctx)
		require.NoError(t, err)
		assert.False(t, created)

		assert.True(t, r.Record(ctx, types.NewReading(ts, time.UTC, "Normal", 812, 4030)))
		assert.True(t, r.Record(ctx, types.NewReading(ts.Add(5*time.Minute), time.UTC, "Normal", 790, 4100)))

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t,
			"date,time,status,PAC_W,E_TODAY\n"+
				"20260115,13:05,Normal,812,4030\n"+
				"20260115,13:10,Normal,790,4100\n",
			string(b),
		)
	})

	t.Run("record creates file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.csv")
		r := New(path)
		assert.True(t, r.Record(ctx, types.NewReading(ts, time.UTC, "Error", 0, 0)))

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "date,time,status,PAC_W,E_TODAY\n20260115,13:05,Error,0,0\n", string(b))
	})

	t.Run("existing file keeps contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.csv")
		require.NoError(t, os.WriteFile(path, []byte("date,time,status,PAC_W,E_TODAY\n20260114,12:00,Normal,1,1\n"), 0o644))

		r := New(path)
		created, err := r.Ensure(ctx)
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, r.Record(ctx, types.NewReading(ts, time.UTC, "Normal", 2, 2)))

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "date,time,status,PAC_W,E_TODAY\n20260114,12:00,Normal,1,1\n20260115,13:05,Normal,2,2\n", string(b))
	})

	t.Run("unwritable", func(t *testing.T) {
		dir := t.TempDir()
		// a regular file where the parent directory should be
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))

		r := New(filepath.Join(blocker, "db.csv"))
		_, err := r.Ensure(ctx)
		assert.Error(t, err)
		assert.False(t, r.Record(ctx, types.NewReading(ts, time.UTC, "Normal", 812, 4030)))
	})
}
