package marketdata

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/models"
	"github.com/eddiefleurent/open_interest/internal/storage"
)

// CachingSource is a read-through cache of fetched chains. Historical
// chains never change, so entries do not expire. Absent results are not
// cached.
type CachingSource struct {
	next   Source
	store  storage.Interface
	logger *logrus.Logger
}

var _ Source = (*CachingSource)(nil)

// NewCachingSource wraps next with store.
func NewCachingSource(next Source, store storage.Interface, logger *logrus.Logger) *CachingSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachingSource{next: next, store: store, logger: logger}
}

// FetchRecords serves from the cache, falling through to the wrapped source
// on a miss. Cache failures are logged and bypassed.
func (c *CachingSource) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	log := c.logger.WithFields(logrus.Fields{"symbol": symbol, "date": date.Format("2006-01-02")})

	records, found, err := c.store.GetChain(ctx, symbol, date)
	switch {
	case err != nil:
		log.WithError(err).Warn("Chain cache read failed")
	case found:
		log.WithField("records", len(records)).Debug("Chain cache hit")
		return records, nil
	}

	records, err = c.next.FetchRecords(ctx, symbol, date)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := c.store.SaveChain(ctx, symbol, date, records); err != nil {
			log.WithError(err).Warn("Chain cache write failed")
		}
	}
	return records, nil
}
