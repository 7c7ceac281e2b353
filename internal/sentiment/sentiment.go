// Package sentiment derives a coarse market-sentiment signal from the
// put/call open-interest ratio of an option chain.
package sentiment

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// ErrRatioUndefined is returned when the chain carries no call open interest.
var ErrRatioUndefined = errors.New("put/call ratio undefined: no call open interest")

// Label is the sentiment classification.
type Label string

const (
	// Bullish means fewer puts than calls are open.
	Bullish Label = "bullish"
	// Bearish means at least as many puts as calls are open.
	Bearish Label = "bearish"
)

// Result is the put/call summary of a chain.
type Result struct {
	Description       map[string]string `json:"description"`
	Sentiment         Label             `json:"sentiment"`
	TotalOpenInterest int64             `json:"total_open_interest"`
	CallOpenInterest  int64             `json:"call_open_interest"`
	PutOpenInterest   int64             `json:"put_open_interest"`
	PutCallRatio      float64           `json:"put_call_ratio"`
}

// SumOpenInterest totals open interest overall and per side.
func SumOpenInterest(records []models.ContractRecord) (total, call, put int64) {
	for _, r := range records {
		total += r.OpenInterest
		switch r.Type {
		case models.OptionTypeCall:
			call += r.OpenInterest
		case models.OptionTypePut:
			put += r.OpenInterest
		}
	}
	return total, call, put
}

// Classify maps a put/call ratio to a sentiment label.
func Classify(ratio float64) Label {
	if ratio < 1.0 {
		return Bullish
	}
	return Bearish
}

// Compute summarizes records. It returns ErrRatioUndefined rather than an
// infinite ratio when there is no call open interest.
func Compute(records []models.ContractRecord) (*Result, error) {
	total, call, put := SumOpenInterest(records)
	if call == 0 {
		return nil, fmt.Errorf("%w (puts: %d)", ErrRatioUndefined, put)
	}

	ratio := float64(put) / float64(call)
	label := Classify(ratio)

	p := message.NewPrinter(language.English)
	return &Result{
		TotalOpenInterest: total,
		CallOpenInterest:  call,
		PutOpenInterest:   put,
		PutCallRatio:      ratio,
		Sentiment:         label,
		Description: map[string]string{
			"total_open_interest": p.Sprintf("Total number of outstanding option contracts: %d", total),
			"call_open_interest":  p.Sprintf("Total number of outstanding call options: %d", call),
			"put_open_interest":   p.Sprintf("Total number of outstanding put options: %d", put),
			"put_call_ratio":      p.Sprintf("Put/Call Ratio: %.2f - Values > 1 indicate more puts than calls", ratio),
			"sentiment": p.Sprintf("Market Sentiment: %s - Bullish when fewer puts than calls are open, bearish otherwise",
				string(label)),
		},
	}, nil
}
