// Package models defines the option-chain records shared by the data sources
// and the analytics engines.
package models

import "strings"

// Column names used by the historical options feed.
const (
	ColumnContractID        = "contractID"
	ColumnSymbol            = "symbol"
	ColumnExpiration        = "expiration"
	ColumnStrike            = "strike"
	ColumnType              = "type"
	ColumnLast              = "last"
	ColumnMark              = "mark"
	ColumnBid               = "bid"
	ColumnBidSize           = "bid_size"
	ColumnAsk               = "ask"
	ColumnAskSize           = "ask_size"
	ColumnVolume            = "volume"
	ColumnOpenInterest      = "open_interest"
	ColumnImpliedVolatility = "implied_volatility"
	ColumnDelta             = "delta"
	ColumnGamma             = "gamma"
	ColumnTheta             = "theta"
	ColumnVega              = "vega"
	ColumnRho               = "rho"
)

// naValues are the feed tokens treated as a missing value.
var naValues = map[string]struct{}{
	"":     {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"None": {},
	"null": {},
	"-":    {},
}

// IsNA reports whether v is one of the feed's missing-value tokens.
// Surrounding whitespace is ignored, so " " is NA as well.
func IsNA(v string) bool {
	_, ok := naValues[strings.TrimSpace(v)]
	return ok
}

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
)

// ParseOptionType normalizes case and whitespace and reports whether s names a put or a call.
func ParseOptionType(s string) (OptionType, bool) {
	switch OptionType(strings.ToLower(strings.TrimSpace(s))) {
	case OptionTypePut:
		return OptionTypePut, true
	case OptionTypeCall:
		return OptionTypeCall, true
	}
	return "", false
}

// ContractRecord is one normalized row of option-chain data.
type ContractRecord struct {
	Expiration   string     `json:"expiration,omitempty"` // YYYY-MM-DD
	Type         OptionType `json:"type"`
	Strike       float64    `json:"strike"`
	OpenInterest int64      `json:"open_interest"`
}

// RawRecord is an un-normalized row keyed by column name, as delivered by a data source.
type RawRecord map[string]string

// Get returns the value for column, or "" when the column is absent.
func (r RawRecord) Get(column string) string {
	if r == nil {
		return ""
	}
	return r[column]
}
