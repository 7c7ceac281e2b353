package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/open_interest/internal/tradier"
)

type fakeCalendarAPI struct {
	mu    sync.Mutex
	calls int
	days  map[string]string
	err   error
}

func (f *fakeCalendarAPI) GetMarketCalendarCtx(_ context.Context, month, year int) (*tradier.MarketCalendarResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	resp := &tradier.MarketCalendarResponse{}
	resp.Calendar.Month = month
	resp.Calendar.Year = year
	for date, status := range f.days {
		resp.Calendar.Days.Day = append(resp.Calendar.Days.Day, tradier.MarketDay{Date: date, Status: status})
	}
	return resp, nil
}

func TestTradierCalendar_IsTradingDay(t *testing.T) {
	api := &fakeCalendarAPI{days: map[string]string{
		"2025-04-17": "open",
		"2025-04-18": "closed",
		"2025-04-19": "closed",
	}}
	cal := NewTradier(api, nil, nil)
	ctx := context.Background()

	ok, err := cal.IsTradingDay(ctx, mustDate(t, "2025-04-17"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cal.IsTradingDay(ctx, mustDate(t, "2025-04-18"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Not listed: answered by the rule-based fallback.
	ok, err = cal.IsTradingDay(ctx, mustDate(t, "2025-04-21"))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, api.calls, "month should be fetched once")
}

func TestTradierCalendar_PreviousTradingDay(t *testing.T) {
	api := &fakeCalendarAPI{days: map[string]string{
		"2025-04-17": "open",
		"2025-04-18": "closed",
		"2025-04-19": "closed",
		"2025-04-20": "closed",
	}}
	cal := NewTradier(api, nil, nil)

	got, err := cal.PreviousTradingDay(context.Background(), mustDate(t, "2025-04-21"))
	require.NoError(t, err)
	assert.Equal(t, "2025-04-17", got.Format(DateLayout))
}

func TestTradierCalendar_FetchError(t *testing.T) {
	boom := errors.New("unavailable")
	cal := NewTradier(&fakeCalendarAPI{err: boom}, nil, nil)

	_, err := cal.IsTradingDay(context.Background(), mustDate(t, "2025-04-17"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "2025-04")
}
