// Package inmemory implements the history store with in-process maps, for
// tests and local development.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openbeans/plugin-counter/internal/errs"
	"github.com/openbeans/plugin-counter/model"
)

type MemStorage struct {
	mu      sync.RWMutex
	plugins map[string]*model.Plugin
	samples map[string][]model.Sample
	logs    map[string][]model.ScrapeLogEntry
}

func NewMemStorage(ctx context.Context) *MemStorage {
	return &MemStorage{
		plugins: make(map[string]*model.Plugin),
		samples: make(map[string][]model.Sample),
		logs:    make(map[string][]model.ScrapeLogEntry),
	}
}

func (store *MemStorage) AddPlugin(ctx context.Context, p *model.Plugin) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	existing, ok := store.plugins[p.ID]
	if !ok {
		cp := *p
		store.plugins[p.ID] = &cp
		return nil
	}
	// Registered plugins keep their original created_at; only the name
	// may be refreshed.
	if p.Name != "" {
		existing.Name = p.Name
	}
	return nil
}

func (store *MemStorage) GetPlugin(ctx context.Context, pluginID string) (*model.Plugin, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	p, ok := store.plugins[pluginID]
	if !ok {
		return nil, errs.ErrNoData
	}
	cp := *p
	return &cp, nil
}

func (store *MemStorage) AddSample(ctx context.Context, s *model.Sample) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.samples[s.PluginID] = append(store.samples[s.PluginID], *s)
	return nil
}

func (store *MemStorage) LatestSample(ctx context.Context, pluginID string) (*model.Sample, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	samples := store.samples[pluginID]
	if len(samples) == 0 {
		return nil, errs.ErrNoData
	}

	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return &latest, nil
}

func (store *MemStorage) History(ctx context.Context, pluginID string, since time.Time) ([]model.Sample, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var result []model.Sample
	for _, s := range store.samples[pluginID] {
		if !s.Timestamp.Before(since) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (store *MemStorage) AddScrapeLog(ctx context.Context, e *model.ScrapeLogEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.logs[e.PluginID] = append(store.logs[e.PluginID], *e)
	return nil
}

func (store *MemStorage) RecentScrapeLogs(ctx context.Context, pluginID string, limit int) ([]model.ScrapeLogEntry, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	entries := append([]model.ScrapeLogEntry(nil), store.logs[pluginID]...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (store *MemStorage) Ping(ctx context.Context) error { return nil }

func (store *MemStorage) Close() error { return nil }
