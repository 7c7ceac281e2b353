// Package mock generates synthetic option chains for offline runs and demos.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/models"
)

const (
	defaultBasePrice      = 450.0
	defaultStrikeInterval = 5.0
	defaultStrikesPerSide = 10
	defaultExpirations    = 4
	maxOpenInterest       = 50000
)

// DataProvider is a marketdata.Source that fabricates end-of-day chains.
// The chain is a pure function of symbol and date, so repeated fetches agree.
type DataProvider struct {
	BasePrice      float64
	StrikeInterval float64
	StrikesPerSide int
	Expirations    int
}

var _ marketdata.Source = (*DataProvider)(nil)

// NewDataProvider returns a provider with SPY-like defaults.
func NewDataProvider() *DataProvider {
	return &DataProvider{
		BasePrice:      defaultBasePrice,
		StrikeInterval: defaultStrikeInterval,
		StrikesPerSide: defaultStrikesPerSide,
		Expirations:    defaultExpirations,
	}
}

// FetchRecords builds the chain of symbol as of date. Weekends have no data.
func (m *DataProvider) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, marketdata.ErrSymbolRequired
	}
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, fmt.Errorf("%w: %s is a weekend", marketdata.ErrNoData, date.Format("2006-01-02"))
	}

	r := rand.New(rand.NewPCG(seed(sym, date), 0x6f70656e))
	spot := math.Round(m.BasePrice*(0.9+0.2*r.Float64())*100) / 100
	interval := m.StrikeInterval
	center := math.Floor(spot/interval) * interval

	var records []models.RawRecord
	for _, exp := range fridaysAfter(date, m.Expirations) {
		expiration := exp.Format("2006-01-02")
		dte := exp.Sub(date).Hours() / 24
		for i := -m.StrikesPerSide; i <= m.StrikesPerSide; i++ {
			strike := center + float64(i)*interval
			if strike <= 0 {
				continue
			}
			records = append(records,
				m.contract(r, sym, exp, expiration, strike, spot, dte, models.OptionTypePut),
				m.contract(r, sym, exp, expiration, strike, spot, dte, models.OptionTypeCall),
			)
		}
	}
	return records, nil
}

func (m *DataProvider) contract(r *rand.Rand, sym string, exp time.Time, expiration string, strike, spot, dte float64, typ models.OptionType) models.RawRecord {
	// Calculate approximate delta based on distance from current price
	distance := math.Abs(strike - spot)
	deltaDecay := math.Exp(-distance * 0.02)

	var delta float64
	oiWeight := deltaDecay
	if typ == models.OptionTypePut {
		delta = -0.5 * deltaDecay
		if strike > spot {
			delta = -0.5 * (1 - deltaDecay)
		} else {
			oiWeight = math.Sqrt(deltaDecay) // puts pile up below spot
		}
	} else {
		delta = 0.5 * deltaDecay
		if strike < spot {
			delta = 0.5 * (1 - deltaDecay)
		} else {
			oiWeight = math.Sqrt(deltaDecay)
		}
	}

	vol := 0.12 + 0.18*r.Float64()
	price := math.Max(0.05, vol*math.Sqrt(math.Max(dte, 1)/365)*spot*0.4*math.Abs(delta))
	openInterest := int64(maxOpenInterest * oiWeight * (0.5 + r.Float64()))
	letter := "C"
	if typ == models.OptionTypePut {
		letter = "P"
	}

	return models.RawRecord{
		models.ColumnContractID:        fmt.Sprintf("%s%s%s%08d", sym, exp.Format("060102"), letter, int(strike*1000)),
		models.ColumnSymbol:            sym,
		models.ColumnExpiration:        expiration,
		models.ColumnStrike:            strconv.FormatFloat(strike, 'f', 2, 64),
		models.ColumnType:              string(typ),
		models.ColumnLast:              money(price),
		models.ColumnMark:              money(price),
		models.ColumnBid:               money(math.Max(0, price-0.05)),
		models.ColumnAsk:               money(price + 0.05),
		models.ColumnVolume:            strconv.FormatInt(r.Int64N(10000), 10),
		models.ColumnOpenInterest:      strconv.FormatInt(openInterest, 10),
		models.ColumnImpliedVolatility: strconv.FormatFloat(vol, 'f', 4, 64),
		models.ColumnDelta:             strconv.FormatFloat(delta, 'f', 4, 64),
	}
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// fridaysAfter returns the first n Fridays strictly after date.
func fridaysAfter(date time.Time, n int) []time.Time {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(d.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	first := d.AddDate(0, 0, offset)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddDate(0, 0, 7*i))
	}
	return out
}

func seed(symbol string, date time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte(date.Format("2006-01-02")))
	return h.Sum64()
}
