package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"wow-guild-mcp/internal/models"
)

// defaultSeriesCap bounds the in-memory snapshots kept per series. At one
// capture per hour this covers the full 30-day aggregate retention window.
const defaultSeriesCap = 31 * 24

type seriesKey struct {
	key    models.RealmKey
	itemID int64
}

// Memory is an in-memory Store. It backs unit tests and serves as the
// bounded working set in front of the database store: each series keeps at
// most seriesCap snapshots, oldest evicted first.
type Memory struct {
	retention Retention
	seriesCap int

	mu   sync.RWMutex
	data map[seriesKey][]models.MarketSnapshot
}

// NewMemory builds an empty in-memory store. seriesCap <= 0 selects the
// default bound.
func NewMemory(retention Retention, seriesCap int) *Memory {
	if seriesCap <= 0 {
		seriesCap = defaultSeriesCap
	}
	return &Memory{
		retention: retention,
		seriesCap: seriesCap,
		data:      make(map[seriesKey][]models.MarketSnapshot),
	}
}

func (m *Memory) Record(_ context.Context, snap *models.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(*snap)
	return nil
}

func (m *Memory) RecordBatch(_ context.Context, snaps []models.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range snaps {
		m.record(snaps[i])
	}
	return nil
}

// record inserts a copy with its capture time aligned to the hour, replacing
// any snapshot already present for that hour.
func (m *Memory) record(snap models.MarketSnapshot) {
	snap.CapturedAt = models.AlignHour(snap.CapturedAt)
	k := seriesKey{key: snap.Key(), itemID: snap.ItemID}
	series := m.data[k]

	idx := sort.Search(len(series), func(i int) bool {
		return !series[i].CapturedAt.Before(snap.CapturedAt)
	})
	if idx < len(series) && series[idx].CapturedAt.Equal(snap.CapturedAt) {
		series[idx] = snap
		m.data[k] = series
		return
	}
	series = append(series, models.MarketSnapshot{})
	copy(series[idx+1:], series[idx:])
	series[idx] = snap
	if len(series) > m.seriesCap {
		series = series[len(series)-m.seriesCap:]
	}
	m.data[k] = series
}

func (m *Memory) QuerySeries(_ context.Context, key models.RealmKey, itemID int64, since, until time.Time) ([]models.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.data[seriesKey{key: key, itemID: itemID}]
	out := make([]models.MarketSnapshot, 0, len(series))
	for _, s := range series {
		if s.CapturedAt.Before(since) || s.CapturedAt.After(until) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) Latest(_ context.Context, key models.RealmKey, itemID int64) (*models.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.data[seriesKey{key: key, itemID: itemID}]
	if len(series) == 0 {
		return nil, ErrNotFound
	}
	snap := series[len(series)-1]
	return &snap, nil
}

func (m *Memory) LatestPerItem(_ context.Context, key models.RealmKey, since time.Time) ([]models.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MarketSnapshot
	for k, series := range m.data {
		if k.key != key || len(series) == 0 {
			continue
		}
		latest := series[len(series)-1]
		if latest.CapturedAt.Before(since) {
			continue
		}
		out = append(out, latest)
	}
	return out, nil
}

func (m *Memory) SeriesInWindow(_ context.Context, key models.RealmKey, since time.Time) (map[int64][]models.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64][]models.MarketSnapshot)
	for k, series := range m.data {
		if k.key != key {
			continue
		}
		for _, s := range series {
			if s.CapturedAt.Before(since) {
				continue
			}
			out[k.itemID] = append(out[k.itemID], s)
		}
	}
	return out, nil
}

func (m *Memory) Prune(_ context.Context, now time.Time) (PruneResult, error) {
	aggCutoff := now.Add(-m.retention.Aggregate)
	distCutoff := now.Add(-m.retention.Distribution)

	m.mu.Lock()
	defer m.mu.Unlock()
	var res PruneResult
	for k, series := range m.data {
		kept := series[:0]
		for i := range series {
			if series[i].CapturedAt.Before(aggCutoff) {
				res.SnapshotsDeleted++
				continue
			}
			if series[i].CapturedAt.Before(distCutoff) && series[i].PriceDistribution != nil {
				series[i].PriceDistribution = nil
				res.DistributionsCleared++
			}
			kept = append(kept, series[i])
		}
		if len(kept) == 0 {
			delete(m.data, k)
			continue
		}
		m.data[k] = kept
	}
	return res, nil
}
