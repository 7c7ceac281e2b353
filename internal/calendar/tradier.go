package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/tradier"
)

// MarketCalendarFetcher is the part of the Tradier client the calendar needs.
type MarketCalendarFetcher interface {
	GetMarketCalendarCtx(ctx context.Context, month, year int) (*tradier.MarketCalendarResponse, error)
}

type monthKey struct {
	year  int
	month time.Month
}

// Tradier is an Oracle backed by the Tradier market calendar. Months are
// fetched once and cached. Days the API does not list are answered by the
// fallback calendar.
type Tradier struct {
	api      MarketCalendarFetcher
	fallback *NYSE
	logger   *logrus.Logger

	mu     sync.Mutex
	months map[monthKey]map[string]bool
}

var _ Oracle = (*Tradier)(nil)

// NewTradier creates a Tradier calendar. fallback may be nil.
func NewTradier(api MarketCalendarFetcher, fallback *NYSE, logger *logrus.Logger) *Tradier {
	if fallback == nil {
		fallback = NewNYSE(nil)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tradier{
		api:      api,
		fallback: fallback,
		logger:   logger,
		months:   make(map[monthKey]map[string]bool),
	}
}

// IsTradingDay reports whether the exchange has a session on date.
func (t *Tradier) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	d := Day(date, t.fallback.Location())
	days, err := t.month(ctx, d.Year(), d.Month())
	if err != nil {
		return false, err
	}
	open, ok := days[d.Format(DateLayout)]
	if !ok {
		t.logger.WithField("date", d.Format(DateLayout)).Debug("Date missing from Tradier calendar, using rules")
		return t.fallback.isTradingDay(d), nil
	}
	return open, nil
}

// PreviousTradingDay returns the most recent trading day strictly before date.
func (t *Tradier) PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	return previousTradingDay(ctx, Day(date, t.fallback.Location()), t.IsTradingDay)
}

func (t *Tradier) month(ctx context.Context, year int, month time.Month) (map[string]bool, error) {
	key := monthKey{year: year, month: month}

	t.mu.Lock()
	days, ok := t.months[key]
	t.mu.Unlock()
	if ok {
		return days, nil
	}

	resp, err := t.api.GetMarketCalendarCtx(ctx, int(month), year)
	if err != nil {
		return nil, fmt.Errorf("fetch market calendar %04d-%02d: %w", year, int(month), err)
	}
	days = make(map[string]bool, len(resp.Calendar.Days.Day))
	for _, day := range resp.Calendar.Days.Day {
		days[day.Date] = day.Status == tradier.MarketDayOpen
	}

	t.mu.Lock()
	t.months[key] = days
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{"year": year, "month": int(month), "days": len(days)}).Debug("Cached market calendar")
	return days, nil
}
