package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/openbeans/plugin-counter/internal/errs"
	"github.com/openbeans/plugin-counter/model"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestAddPluginKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemStorage(ctx)

	require.NoError(t, store.AddPlugin(ctx, &model.Plugin{ID: "118", CreatedAt: baseTime}))
	require.NoError(t, store.AddPlugin(ctx, &model.Plugin{ID: "118", Name: "Darcula", CreatedAt: baseTime.Add(time.Hour)}))

	p, err := store.GetPlugin(ctx, "118")
	require.NoError(t, err)
	require.Equal(t, baseTime, p.CreatedAt)
	require.Equal(t, "Darcula", p.Name)
}

func TestLatestSample(t *testing.T) {
	ctx := context.Background()
	store := NewMemStorage(ctx)

	_, err := store.LatestSample(ctx, "118")
	require.ErrorIs(t, err, errs.ErrNoData)

	require.NoError(t, store.AddSample(ctx, &model.Sample{PluginID: "118", Timestamp: baseTime, Count: 10}))
	require.NoError(t, store.AddSample(ctx, &model.Sample{PluginID: "118", Timestamp: baseTime.Add(time.Hour), Count: 12}))

	latest, err := store.LatestSample(ctx, "118")
	require.NoError(t, err)
	require.Equal(t, int64(12), latest.Count)
}

func TestHistoryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewMemStorage(ctx)

	for i, count := range []int64{10, 11, 12, 13} {
		require.NoError(t, store.AddSample(ctx, &model.Sample{
			PluginID:  "118",
			Timestamp: baseTime.AddDate(0, 0, i),
			Count:     count,
		}))
	}

	got, err := store.History(ctx, "118", baseTime.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(11), got[0].Count)
	require.Equal(t, int64(13), got[2].Count)
}

func TestRecentScrapeLogsDescendingWithLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemStorage(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AddScrapeLog(ctx, &model.ScrapeLogEntry{
			PluginID:  "118",
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
			Success:   i%2 == 0,
		}))
	}

	logs, err := store.RecentScrapeLogs(ctx, "118", 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.True(t, logs[0].Timestamp.After(logs[1].Timestamp))
	require.True(t, logs[1].Timestamp.After(logs[2].Timestamp))
}

func TestHistoryIsolatedPerPlugin(t *testing.T) {
	ctx := context.Background()
	store := NewMemStorage(ctx)

	require.NoError(t, store.AddSample(ctx, &model.Sample{PluginID: "118", Timestamp: baseTime, Count: 1}))
	require.NoError(t, store.AddSample(ctx, &model.Sample{PluginID: "119", Timestamp: baseTime, Count: 2}))

	got, err := store.History(ctx, "118", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].Count)
}
