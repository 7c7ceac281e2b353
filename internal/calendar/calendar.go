// Package calendar answers trading-day questions for an exchange.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// maxLookback bounds the backwards search for a trading day. No exchange
// closes for longer than this in practice.
const maxLookback = 14

// Oracle answers whether a date is a trading day for one exchange.
// Implementations must be safe for concurrent use.
type Oracle interface {
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
	// PreviousTradingDay returns the most recent trading day strictly before date.
	PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error)
}

// Day returns t's calendar date, as written in t's own location, at
// midnight in loc. Callers convert instants with t.In(loc) first when the
// exchange-local date is wanted.
func Day(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// previousTradingDay walks backwards from date using isTradingDay.
func previousTradingDay(ctx context.Context, date time.Time,
	isTradingDay func(context.Context, time.Time) (bool, error)) (time.Time, error) {
	d := date
	for i := 0; i < maxLookback; i++ {
		d = d.AddDate(0, 0, -1)
		ok, err := isTradingDay(ctx, d)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("no trading day within %d days before %s", maxLookback, date.Format(DateLayout))
}

// NextOptionExpiry returns the weekly option expiry on or after date: the
// last trading day of date's Monday-to-Sunday week, or of the following week
// when this week has no trading day left.
func NextOptionExpiry(ctx context.Context, oracle Oracle, date time.Time) (time.Time, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	daysToSunday := (7 - int(start.Weekday())) % 7
	weekEnd := start.AddDate(0, 0, daysToSunday)

	for _, end := range []time.Time{weekEnd, weekEnd.AddDate(0, 0, 7)} {
		for d := end; !d.Before(start); d = d.AddDate(0, 0, -1) {
			ok, err := oracle.IsTradingDay(ctx, d)
			if err != nil {
				return time.Time{}, err
			}
			if ok {
				return d, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("no option expiry within two weeks of %s", start.Format(DateLayout))
}

// IsDataAvailable reports whether end-of-day option data can exist for date:
// the date must be before today (in now's location), a weekday, and a
// trading day.
func IsDataAvailable(ctx context.Context, oracle Oracle, date, now time.Time) (bool, error) {
	loc := now.Location()
	d := Day(date, loc)
	if !d.Before(Day(now, loc)) {
		return false, nil
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	return oracle.IsTradingDay(ctx, d)
}
