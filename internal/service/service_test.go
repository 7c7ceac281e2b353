package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/open_interest/internal/calendar"
	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/maxpain"
	"github.com/eddiefleurent/open_interest/internal/metrics"
	"github.com/eddiefleurent/open_interest/internal/models"
	"github.com/eddiefleurent/open_interest/internal/sentiment"
)

// MockSource is a testify mock of marketdata.Source.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	args := m.Called(ctx, symbol, date)
	records, _ := args.Get(0).([]models.RawRecord)
	return records, args.Error(1)
}

// Wednesday 2025-04-23, 10:00 New York. Previous session is 2025-04-22.
func testNow() time.Time {
	return time.Date(2025, time.April, 23, 10, 0, 0, 0, calendar.NewYork())
}

func onDate(s string) interface{} {
	return mock.MatchedBy(func(d time.Time) bool { return d.Format(calendar.DateLayout) == s })
}

func raw(expiration, typ string, strike float64, oi int64) models.RawRecord {
	return models.RawRecord{
		models.ColumnExpiration:   expiration,
		models.ColumnType:         typ,
		models.ColumnStrike:       strconv.FormatFloat(strike, 'f', 2, 64),
		models.ColumnOpenInterest: strconv.FormatInt(oi, 10),
	}
}

// symmetricChain has max pain at 100: calls at 90..110 and puts at 90..110.
func symmetricChain(expiration string) []models.RawRecord {
	var out []models.RawRecord
	for _, k := range []float64{90, 95, 100, 105, 110} {
		out = append(out, raw(expiration, "call", k, 100), raw(expiration, "put", k, 100))
	}
	return out
}

func newTestService(t *testing.T, src marketdata.Source, m *metrics.Metrics) *Service {
	t.Helper()
	svc, err := New(Options{
		Source:  src,
		Now:     testNow,
		Metrics: m,
		MaxPain: maxpain.Options{MinRecords: 10},
	})
	require.NoError(t, err)
	return svc
}

func TestComputeMaxPain_DefaultDate(t *testing.T) {
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "SPY", onDate("2025-04-22")).Return(symmetricChain("2025-04-25"), nil).Once()
	m := metrics.New("test")

	resp, err := newTestService(t, src, m).ComputeMaxPain(context.Background(), MaxPainRequest{Symbol: "spy"})
	require.NoError(t, err)
	src.AssertExpectations(t)

	assert.Equal(t, "SPY", resp.Symbol)
	assert.Equal(t, "2025-04-22", resp.Date)
	assert.Equal(t, 100.0, resp.MaxPain)
	assert.Equal(t, 5, resp.Strikes)
	assert.Equal(t, 10, resp.Records)
	assert.Equal(t, "Max Pain: 100.00 - The strike price where option holders collectively lose the most", resp.Description)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(ToolComputeMaxPain, OutcomeOK)))

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"max_pain":100`)
}

func TestComputeMaxPain_ExplicitDateAndExpiration(t *testing.T) {
	chain := append(symmetricChain("2025-04-25"), raw("2025-05-02", "call", 120, 5000))
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "SPY", onDate("2025-04-17")).Return(chain, nil)

	resp, err := newTestService(t, src, nil).ComputeMaxPain(context.Background(),
		MaxPainRequest{Symbol: "SPY", Date: "2025-04-17", Expiration: "2025-04-25"})
	require.NoError(t, err)
	assert.Equal(t, "2025-04-25", resp.Expiration)
	assert.Equal(t, 100.0, resp.MaxPain)
	assert.Equal(t, 10, resp.Records)
}

func TestComputeMaxPain_NextExpiration(t *testing.T) {
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "SPY", onDate("2025-04-22")).Return(symmetricChain("2025-04-25"), nil)

	resp, err := newTestService(t, src, nil).ComputeMaxPain(context.Background(),
		MaxPainRequest{Symbol: "SPY", Expiration: "next"})
	require.NoError(t, err)
	assert.Equal(t, "2025-04-25", resp.Expiration)
}

func TestComputeMaxPain_NextExpirationFollowsRequestDate(t *testing.T) {
	chain := append(symmetricChain("2025-03-07"), symmetricChain("2025-04-25")...)
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "SPY", onDate("2025-03-03")).Return(chain, nil)

	resp, err := newTestService(t, src, nil).ComputeMaxPain(context.Background(),
		MaxPainRequest{Symbol: "SPY", Date: "2025-03-03", Expiration: "next"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", resp.Date)
	assert.Equal(t, "2025-03-07", resp.Expiration)
	assert.Equal(t, 10, resp.Records)
	assert.Equal(t, 100.0, resp.MaxPain)
}

func TestComputeMaxPain_Failures(t *testing.T) {
	tests := []struct {
		name    string
		req     MaxPainRequest
		records []models.RawRecord
		fetch   error
		is      error
		outcome string
		contain string
	}{
		{
			name:    "no data",
			req:     MaxPainRequest{Symbol: "SPY"},
			fetch:   fmt.Errorf("%w: holiday", marketdata.ErrNoData),
			is:      marketdata.ErrNoData,
			outcome: OutcomeNoData,
			contain: "no open interest data found for SPY on 2025-04-22",
		},
		{
			name:    "empty payload",
			req:     MaxPainRequest{Symbol: "SPY"},
			records: []models.RawRecord{},
			is:      marketdata.ErrNoData,
			outcome: OutcomeNoData,
		},
		{
			name:    "too few records",
			req:     MaxPainRequest{Symbol: "SPY"},
			records: symmetricChain("2025-04-25")[:9],
			is:      maxpain.ErrInsufficientData,
			outcome: OutcomeInsufficientData,
		},
		{
			name:    "unknown expiration",
			req:     MaxPainRequest{Symbol: "SPY", Expiration: "2030-01-18"},
			records: symmetricChain("2025-04-25"),
			is:      maxpain.ErrInsufficientData,
			outcome: OutcomeInsufficientData,
			contain: "no records for specified expiration",
		},
		{
			name:    "upstream error",
			req:     MaxPainRequest{Symbol: "SPY"},
			fetch:   &marketdata.APIError{Provider: "alphavantage", Status: 500, Body: "boom"},
			outcome: OutcomeError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &MockSource{}
			src.On("FetchRecords", mock.Anything, "SPY", mock.Anything).Return(tt.records, tt.fetch)
			m := metrics.New("test")

			resp, err := newTestService(t, src, m).ComputeMaxPain(context.Background(), tt.req)
			assert.Nil(t, resp)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.contain != "" {
				assert.Contains(t, err.Error(), tt.contain)
			}
			assert.Equal(t, tt.outcome, Outcome(err))
			assert.False(t, IsInvalidRequest(err))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues(ToolComputeMaxPain, tt.outcome)))
		})
	}
}

func TestComputeMaxPain_InvalidRequests(t *testing.T) {
	src := &MockSource{}
	svc := newTestService(t, src, nil)

	for _, req := range []MaxPainRequest{
		{Symbol: ""},
		{Symbol: "SPY; DROP"},
		{Symbol: "SPY", Date: "04/22/2025"},
		{Symbol: "SPY", Expiration: "soon"},
	} {
		_, err := svc.ComputeMaxPain(context.Background(), req)
		assert.True(t, IsInvalidRequest(err), "%+v: %v", req, err)
	}
	src.AssertNotCalled(t, "FetchRecords", mock.Anything, mock.Anything, mock.Anything)
}

func TestComputeMaxPain_SkipsMalformed(t *testing.T) {
	chain := append(symmetricChain("2025-04-25"),
		models.RawRecord{models.ColumnStrike: "abc", models.ColumnType: "call", models.ColumnOpenInterest: "1"},
		models.RawRecord{models.ColumnStrike: "100", models.ColumnType: "straddle", models.ColumnOpenInterest: "1"},
	)
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "SPY", mock.Anything).Return(chain, nil)
	m := metrics.New("test")

	resp, err := newTestService(t, src, m).ComputeMaxPain(context.Background(), MaxPainRequest{Symbol: "SPY"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Skipped)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkippedRecordsTotal))

	failFast, err := New(Options{Source: src, Now: testNow, MaxPain: maxpain.Options{Malformed: maxpain.FailFast}})
	require.NoError(t, err)
	_, err = failFast.ComputeMaxPain(context.Background(), MaxPainRequest{Symbol: "SPY"})
	assert.ErrorIs(t, err, maxpain.ErrMalformedRecord)
}

func TestComputeSentiment(t *testing.T) {
	chain := []models.RawRecord{
		raw("2025-04-25", "call", 100, 1500),
		raw("2025-04-25", "call", 105, 500),
		raw("2025-04-25", "put", 95, 1000),
		{models.ColumnStrike: "90", models.ColumnType: "put", models.ColumnOpenInterest: "N/A"},
	}
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "QQQ", onDate("2025-04-22")).Return(chain, nil)

	resp, err := newTestService(t, src, nil).ComputeSentiment(context.Background(), "qqq")
	require.NoError(t, err)
	assert.Equal(t, "QQQ", resp.Symbol)
	assert.Equal(t, int64(3000), resp.TotalOpenInterest)
	assert.Equal(t, int64(2000), resp.CallOpenInterest)
	assert.Equal(t, int64(1000), resp.PutOpenInterest)
	assert.InDelta(t, 0.5, resp.PutCallRatio, 1e-12)
	assert.Equal(t, sentiment.Bullish, resp.Sentiment)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	for _, k := range []string{"total_open_interest", "call_open_interest", "put_open_interest", "put_call_ratio", "sentiment", "description"} {
		assert.Contains(t, decoded, k)
	}
}

func TestComputeSentiment_NoCalls(t *testing.T) {
	src := &MockSource{}
	src.On("FetchRecords", mock.Anything, "SPY", mock.Anything).Return([]models.RawRecord{raw("2025-04-25", "put", 100, 10)}, nil)

	_, err := newTestService(t, src, nil).ComputeSentiment(context.Background(), "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentiment.ErrRatioUndefined)
	assert.Equal(t, OutcomeUndefined, Outcome(err))
	assert.Contains(t, ErrorPayload(err).Error, "put/call ratio undefined")
}

func TestErrorPayload(t *testing.T) {
	assert.Equal(t, ErrorResponse{Error: "boom"}, ErrorPayload(errors.New("boom")))
	assert.Equal(t, "unknown error", ErrorPayload(nil).Error)

	body, err := json.Marshal(ErrorPayload(errors.New("boom")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, string(body))
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
