package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wow-guild-mcp/internal/models"
)

// ErrNotFound means no snapshot has been recorded for the requested
// (item, realm) pair. A normal outcome for untracked items, not a failure.
var ErrNotFound = errors.New("no snapshot recorded")

// StorageError wraps a persistence-layer failure. The operation in progress
// is lost but never leaves a partially-written snapshot behind: all writes
// are whole-record replacements.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Retention holds the two pruning windows: snapshots older than Aggregate
// are deleted entirely; price distributions older than Distribution are
// cleared while the aggregate fields stay queryable.
type Retention struct {
	Aggregate    time.Duration
	Distribution time.Duration
}

// DefaultRetention is 30 days of aggregates, 7 days of distributions.
func DefaultRetention() Retention {
	return Retention{
		Aggregate:    30 * 24 * time.Hour,
		Distribution: 7 * 24 * time.Hour,
	}
}

// PruneResult reports what a retention pass removed.
type PruneResult struct {
	SnapshotsDeleted     int64 `json:"snapshots_deleted"`
	DistributionsCleared int64 `json:"distributions_cleared"`
}

// Store is the durable time series of market snapshots, partitioned by
// (item, realm key). Writes are idempotent per capture hour: a duplicate
// capture replaces the whole record, last write wins.
type Store interface {
	// Record appends one snapshot, aligning its capture time to the hour.
	Record(ctx context.Context, snap *models.MarketSnapshot) error
	// RecordBatch appends a whole capture cycle's snapshots.
	RecordBatch(ctx context.Context, snaps []models.MarketSnapshot) error
	// QuerySeries returns the time-ascending snapshots for one item in
	// [since, until]. An empty slice is a valid result.
	QuerySeries(ctx context.Context, key models.RealmKey, itemID int64, since, until time.Time) ([]models.MarketSnapshot, error)
	// Latest returns the most recent snapshot for one item, or ErrNotFound.
	Latest(ctx context.Context, key models.RealmKey, itemID int64) (*models.MarketSnapshot, error)
	// LatestPerItem returns the most recent snapshot of every item on the
	// realm captured at or after since.
	LatestPerItem(ctx context.Context, key models.RealmKey, since time.Time) ([]models.MarketSnapshot, error)
	// SeriesInWindow returns the time-ascending series of every item on the
	// realm captured at or after since, keyed by item ID.
	SeriesInWindow(ctx context.Context, key models.RealmKey, since time.Time) (map[int64][]models.MarketSnapshot, error)
	// Prune enforces the retention windows relative to now.
	Prune(ctx context.Context, now time.Time) (PruneResult, error)
}
