// Package marketdata fetches raw option-chain rows from upstream providers
// and decorates sources with circuit breaking, caching and instrumentation.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// ErrNoData is the absent outcome: the date is not a trading day or too
// recent, or the provider returned nothing usable.
var ErrNoData = errors.New("no option data available")

// ErrSymbolRequired is returned for an empty symbol.
var ErrSymbolRequired = errors.New("symbol is required")

// Source fetches one day's option chain for an underlying.
type Source interface {
	FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error)

// FetchRecords calls f.
func (f SourceFunc) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	return f(ctx, symbol, date)
}

// APIError represents a non-2xx provider response.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// HTTPStatus exposes the status code to retry classification.
func (e *APIError) HTTPStatus() int { return e.Status }

const maxErrorBody = 64 << 10

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return "failed to read error body"
	}
	return strings.TrimSpace(string(b))
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", ErrSymbolRequired
	}
	return s, nil
}

func noData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoData, fmt.Sprintf(format, args...))
}
