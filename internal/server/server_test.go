package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/maxpain"
	"github.com/eddiefleurent/open_interest/internal/metrics"
	"github.com/eddiefleurent/open_interest/internal/sentiment"
	"github.com/eddiefleurent/open_interest/internal/service"
)

type MockAnalytics struct {
	mock.Mock
}

func (m *MockAnalytics) ComputeSentiment(ctx context.Context, symbol string) (*service.SentimentResponse, error) {
	args := m.Called(ctx, symbol)
	resp, _ := args.Get(0).(*service.SentimentResponse)
	return resp, args.Error(1)
}

func (m *MockAnalytics) ComputeMaxPain(ctx context.Context, req service.MaxPainRequest) (*service.MaxPainResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*service.MaxPainResponse)
	return resp, args.Error(1)
}

func do(t *testing.T, h http.Handler, target string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := rec.Result()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(body, &decoded), string(body))
	}
	return resp, decoded
}

func TestServer_MaxPain(t *testing.T) {
	a := &MockAnalytics{}
	a.On("ComputeMaxPain", mock.Anything, service.MaxPainRequest{Symbol: "SPY", Date: "2025-04-17", Expiration: "2025-04-25"}).
		Return(&service.MaxPainResponse{Symbol: "SPY", Date: "2025-04-17", MaxPain: 500, Description: "Max Pain: 500.00"}, nil)
	m := metrics.New("test")
	h := NewServer(Config{}, a, m, nil).Handler()

	resp, body := do(t, h, "/api/maxpain/SPY?date=2025-04-17&expiration=2025-04-25", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 500.0, body["max_pain"])
	assert.Equal(t, "Max Pain: 500.00", body["description"])
	a.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/maxpain/{symbol}", "200")))
}

func TestServer_Sentiment(t *testing.T) {
	a := &MockAnalytics{}
	a.On("ComputeSentiment", mock.Anything, "QQQ").Return(&service.SentimentResponse{
		Symbol: "QQQ",
		Result: &sentiment.Result{CallOpenInterest: 2, PutOpenInterest: 1, PutCallRatio: 0.5, Sentiment: sentiment.Bullish},
	}, nil)
	h := NewServer(Config{}, a, nil, nil).Handler()

	resp, body := do(t, h, "/api/sentiment/QQQ", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bullish", body["sentiment"])
	assert.Equal(t, 0.5, body["put_call_ratio"])
}

func TestServer_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: date %q", service.ErrInvalidRequest, "x"), http.StatusBadRequest},
		{"no data", fmt.Errorf("no open interest data found: %w", marketdata.ErrNoData), http.StatusUnprocessableEntity},
		{"insufficient", &maxpain.InsufficientDataError{Reason: "too few records", Records: 3, MinRecords: 10}, http.StatusUnprocessableEntity},
		{"upstream", &marketdata.APIError{Provider: "alphavantage", Status: 502, Body: "bad gateway"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &MockAnalytics{}
			a.On("ComputeMaxPain", mock.Anything, mock.Anything).Return(nil, tt.err)
			h := NewServer(Config{}, a, nil, nil).Handler()

			resp, body := do(t, h, "/api/maxpain/SPY", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestServer_Auth(t *testing.T) {
	a := &MockAnalytics{}
	a.On("ComputeSentiment", mock.Anything, "SPY").Return(&service.SentimentResponse{Symbol: "SPY", Result: &sentiment.Result{}}, nil)
	h := NewServer(Config{AuthToken: "secret"}, a, metrics.New("test"), nil).Handler()

	resp, _ := do(t, h, "/api/sentiment/SPY", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, h, "/api/sentiment/SPY", map[string]string{"X-Auth-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, h, "/api/sentiment/SPY", map[string]string{"X-Auth-Token": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, h, "/api/sentiment/SPY?token=secret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, h, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, _ = do(t, h, "/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	h := NewServer(Config{}, &MockAnalytics{}, metrics.New("test"), nil).Handler()
	_, _ = do(t, h, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{code="200",method="GET",route="/health"} 1`)

	noMetrics := NewServer(Config{}, &MockAnalytics{}, nil, nil).Handler()
	rec = httptest.NewRecorder()
	noMetrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s := NewServer(Config{}, &MockAnalytics{}, nil, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}
