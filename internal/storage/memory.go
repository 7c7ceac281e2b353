package storage

import (
	"context"
	"sync"
	"time"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// MemoryStorage is an in-process Interface, used in tests and when the
// on-disk cache is disabled.
type MemoryStorage struct {
	mu     sync.RWMutex
	chains map[string][]models.RawRecord
	closed bool
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{chains: make(map[string][]models.RawRecord)}
}

// GetChain returns a copy of the cached snapshot.
func (m *MemoryStorage) GetChain(_ context.Context, symbol string, date time.Time) ([]models.RawRecord, bool, error) {
	sym, day, err := key(symbol, date)
	if err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	records, ok := m.chains[sym+"|"+day]
	if !ok {
		return nil, false, nil
	}
	return copyRecords(records), true, nil
}

// SaveChain stores a copy of records.
func (m *MemoryStorage) SaveChain(_ context.Context, symbol string, date time.Time, records []models.RawRecord) error {
	sym, day, err := key(symbol, date)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.chains[sym+"|"+day] = copyRecords(records)
	return nil
}

// Len returns the number of cached snapshots.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chains)
}

// Close drops the cache.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.chains = nil
	return nil
}

func copyRecords(in []models.RawRecord) []models.RawRecord {
	out := make([]models.RawRecord, len(in))
	for i, r := range in {
		c := make(models.RawRecord, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
