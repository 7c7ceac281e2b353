package sentiment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/open_interest/internal/models"
)

func records(callOI, putOI []int64) []models.ContractRecord {
	var out []models.ContractRecord
	for i, oi := range callOI {
		out = append(out, models.ContractRecord{Strike: 100 + float64(i), Type: models.OptionTypeCall, OpenInterest: oi})
	}
	for i, oi := range putOI {
		out = append(out, models.ContractRecord{Strike: 100 + float64(i), Type: models.OptionTypePut, OpenInterest: oi})
	}
	return out
}

func TestSumOpenInterest(t *testing.T) {
	total, call, put := SumOpenInterest(records([]int64{10, 20}, []int64{5, 0, 7}))
	assert.Equal(t, int64(42), total)
	assert.Equal(t, int64(30), call)
	assert.Equal(t, int64(12), put)

	total, call, put = SumOpenInterest(nil)
	assert.Zero(t, total)
	assert.Zero(t, call)
	assert.Zero(t, put)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Label
	}{
		{0, Bullish},
		{0.99, Bullish},
		{1.0, Bearish},
		{2.5, Bearish},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestCompute(t *testing.T) {
	res, err := Compute(records([]int64{1500, 500}, []int64{1000}))
	require.NoError(t, err)

	assert.Equal(t, int64(3000), res.TotalOpenInterest)
	assert.Equal(t, int64(2000), res.CallOpenInterest)
	assert.Equal(t, int64(1000), res.PutOpenInterest)
	assert.InDelta(t, 0.5, res.PutCallRatio, 1e-12)
	assert.Equal(t, Bullish, res.Sentiment)

	assert.Equal(t, "Total number of outstanding option contracts: 3,000", res.Description["total_open_interest"])
	assert.Equal(t, "Total number of outstanding call options: 2,000", res.Description["call_open_interest"])
	assert.Equal(t, "Put/Call Ratio: 0.50 - Values > 1 indicate more puts than calls", res.Description["put_call_ratio"])
	assert.Contains(t, res.Description["sentiment"], "bullish")
}

func TestCompute_Bearish(t *testing.T) {
	res, err := Compute(records([]int64{100}, []int64{100}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PutCallRatio)
	assert.Equal(t, Bearish, res.Sentiment)
}

func TestCompute_NoCallsIsUndefined(t *testing.T) {
	res, err := Compute(records([]int64{0, 0}, []int64{250}))
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRatioUndefined))

	_, err = Compute(nil)
	assert.ErrorIs(t, err, ErrRatioUndefined)
}
