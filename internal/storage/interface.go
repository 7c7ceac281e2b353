package storage

import (
	"context"
	"time"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// Interface caches raw option-chain snapshots keyed by symbol and trading
// date. Only fetched inputs are stored, never computed results.
//
// Implementations must be safe for concurrent use.
type Interface interface {
	// GetChain returns the cached snapshot and whether one was found.
	GetChain(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, bool, error)
	// SaveChain stores or replaces the snapshot for symbol and date.
	SaveChain(ctx context.Context, symbol string, date time.Time, records []models.RawRecord) error
	Close() error
}

// NewStorage opens the SQLite cache at path, or an in-memory cache when path
// is empty.
func NewStorage(path string) (Interface, error) {
	if path == "" {
		return NewMemoryStorage(), nil
	}
	return NewSQLiteStorage(path)
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MemoryStorage)(nil)
)
