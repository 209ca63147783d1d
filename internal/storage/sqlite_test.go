package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/pushrelay/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "pushrelay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLite_SaveAndGetFeedback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	reported := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	saved, err := store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: reported.Unix(), Token: []byte{0xab, 0xcd}})
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "abcd", saved.Token)
	assert.True(t, reported.Equal(saved.ReportedAt))

	got, err := store.GetFeedback(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)

	missing, err := store.GetFeedback(ctx, "ffff")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_SaveFeedbackUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: 1000, Token: []byte{1}})
	require.NoError(t, err)
	second, err := store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: 2000, Token: []byte{1}})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2000), second.ReportedAt.Unix())

	all, err := store.ListFeedback(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_ListDeleteStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: now.Add(-48 * time.Hour).Unix(), Token: []byte{1}})
	require.NoError(t, err)
	_, err = store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: now.Add(-time.Hour).Unix(), Token: []byte{2}})
	require.NoError(t, err)

	list, err := store.ListFeedback(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "02", list[0].Token)
	assert.Equal(t, "01", list[1].Token)

	page, err := store.ListFeedback(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "01", page[0].Token)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTokens)
	assert.Equal(t, int64(1), stats.ReportedLast24h)

	require.NoError(t, store.DeleteFeedback(ctx, "01"))
	list, err = store.ListFeedback(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
