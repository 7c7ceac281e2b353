package calendar

import (
	"context"
	"time"
)

// specialClosures are one-off NYSE closures outside the holiday rules.
var specialClosures = map[string]struct{}{
	"2001-09-11": {}, "2001-09-12": {}, "2001-09-13": {}, "2001-09-14": {},
	"2004-06-11": {}, // Reagan
	"2007-01-02": {}, // Ford
	"2012-10-29": {}, "2012-10-30": {}, // Hurricane Sandy
	"2018-12-05": {}, // G.H.W. Bush
	"2025-01-09": {}, // Carter
}

// NYSE is a rule-based New York Stock Exchange calendar. It is immutable and
// safe for concurrent use.
type NYSE struct {
	loc *time.Location
}

var _ Oracle = (*NYSE)(nil)

// NewYork returns America/New_York, or a fixed ET offset when the zone
// database is missing.
func NewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// NewNYSE creates an NYSE calendar evaluating dates in loc. A nil loc means
// NewYork().
func NewNYSE(loc *time.Location) *NYSE {
	if loc == nil {
		loc = NewYork()
	}
	return &NYSE{loc: loc}
}

// Location returns the calendar's time zone.
func (n *NYSE) Location() *time.Location { return n.loc }

// IsTradingDay never fails; the error is part of the Oracle contract.
func (n *NYSE) IsTradingDay(_ context.Context, date time.Time) (bool, error) {
	return n.isTradingDay(Day(date, n.loc)), nil
}

// PreviousTradingDay returns the most recent trading day strictly before date.
func (n *NYSE) PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	return previousTradingDay(ctx, Day(date, n.loc), n.IsTradingDay)
}

// IsHoliday reports whether d is a full-day exchange closure on a weekday.
func (n *NYSE) IsHoliday(date time.Time) bool {
	d := Day(date, n.loc)
	if _, ok := specialClosures[d.Format(DateLayout)]; ok {
		return true
	}
	for _, h := range holidays(d.Year(), n.loc) {
		if h.Equal(d) {
			return true
		}
	}
	return false
}

func (n *NYSE) isTradingDay(d time.Time) bool {
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !n.IsHoliday(d)
}

// holidays lists the observed NYSE holidays of year.
func holidays(year int, loc *time.Location) []time.Time {
	date := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 0, 0, 0, 0, loc) }

	out := make([]time.Time, 0, 10)

	// New Year's Day moves to Monday from Sunday; a Saturday one is not made up on Friday.
	if ny := date(time.January, 1); ny.Weekday() == time.Sunday {
		out = append(out, ny.AddDate(0, 0, 1))
	} else if ny.Weekday() != time.Saturday {
		out = append(out, ny)
	}

	if year >= 1998 {
		out = append(out, nthWeekday(year, time.January, time.Monday, 3, loc)) // MLK
	}
	out = append(out,
		nthWeekday(year, time.February, time.Monday, 3, loc), // Washington's Birthday
		easter(year, loc).AddDate(0, 0, -2),                  // Good Friday
		lastWeekday(year, time.May, time.Monday, loc),        // Memorial Day
	)
	if year >= 2022 {
		out = append(out, observed(date(time.June, 19)))
	}
	out = append(out,
		observed(date(time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1, loc),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4, loc), // Thanksgiving
		observed(date(time.December, 25)),
	)
	return out
}

// observed shifts a Saturday holiday to Friday and a Sunday one to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easter returns Western Easter Sunday (anonymous Gregorian algorithm).
func easter(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
