package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *SQLiteClient {
	t.Helper()
	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "nested", "test.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStoreRecordFirstWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	stored, err := client.StoreRecord(ctx, StoredRecord{Key: "k", ContentHash: "h", Depth: "standard", Data: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = client.StoreRecord(ctx, StoredRecord{Key: "k", ContentHash: "h", Depth: "standard", Data: []byte(`{"a":2}`)})
	require.NoError(t, err)
	assert.False(t, stored)

	rec, ok, err := client.GetRecord(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(rec.Data))

	_, ok, err = client.GetRecord(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := client.RecordsByHash(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	total, err := client.TotalRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	require.NoError(t, client.DeleteRecords(ctx))
	total, err = client.TotalRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAnalysisExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, client.PutAnalysis(ctx, StoredAnalysis{
		Key:       "live",
		Data:      []byte(`{"summary":"ok"}`),
		CostSaved: 0.25,
		CachedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, client.PutAnalysis(ctx, StoredAnalysis{
		Key:       "stale",
		Data:      []byte(`{}`),
		CachedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}))

	got, ok, err := client.GetAnalysis(ctx, "live", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.25, got.CostSaved)
	assert.JSONEq(t, `{"summary":"ok"}`, string(got.Data))

	_, ok, err = client.GetAnalysis(ctx, "stale", now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = client.GetAnalysis(ctx, "live", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}
