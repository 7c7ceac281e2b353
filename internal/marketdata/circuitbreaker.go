package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips at 60% failures over at least five
// requests and probes again after 30 seconds.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// CircuitBreakerSource wraps a Source with circuit breaker functionality.
// ErrNoData and caller cancellation do not count as failures.
type CircuitBreakerSource struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
}

var _ Source = (*CircuitBreakerSource)(nil)

// NewCircuitBreakerSource wraps source. name labels the breaker in logs.
func NewCircuitBreakerSource(name string, source Source, settings CircuitBreakerSettings, logger *logrus.Logger) *CircuitBreakerSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNoData) ||
				errors.Is(err, ErrSymbolRequired) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &CircuitBreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker calls
func execCircuitBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// FetchRecords delegates through the breaker. An open breaker returns
// gobreaker.ErrOpenState without calling the source.
func (c *CircuitBreakerSource) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	return execCircuitBreaker(c.breaker, func() ([]models.RawRecord, error) {
		return c.source.FetchRecords(ctx, symbol, date)
	})
}

// State reports the breaker state.
func (c *CircuitBreakerSource) State() gobreaker.State {
	return c.breaker.State()
}

// IsBreakerError reports whether err was produced by an open or saturated
// breaker rather than by the source.
func IsBreakerError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
