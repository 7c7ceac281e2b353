package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// Fetch outcomes reported to a FetchObserver.
const (
	OutcomeOK      = "ok"
	OutcomeNoData  = "no_data"
	OutcomeError   = "error"
	OutcomeBreaker = "breaker_open"
)

// FetchObserver receives one observation per fetch.
type FetchObserver interface {
	ObserveFetch(provider, outcome string, elapsed time.Duration, records int)
}

// InstrumentedSource reports every fetch to an observer.
type InstrumentedSource struct {
	next     Source
	provider string
	observer FetchObserver
}

var _ Source = (*InstrumentedSource)(nil)

// Instrument wraps next. A nil observer returns next unchanged.
func Instrument(next Source, provider string, observer FetchObserver) Source {
	if observer == nil {
		return next
	}
	return &InstrumentedSource{next: next, provider: provider, observer: observer}
}

// FetchRecords delegates and records the outcome.
func (s *InstrumentedSource) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	start := time.Now()
	records, err := s.next.FetchRecords(ctx, symbol, date)
	s.observer.ObserveFetch(s.provider, Outcome(err), time.Since(start), len(records))
	return records, err
}

// Outcome classifies a fetch error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNoData):
		return OutcomeNoData
	case IsBreakerError(err):
		return OutcomeBreaker
	default:
		return OutcomeError
	}
}
