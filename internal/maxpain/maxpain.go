// Package maxpain computes the max-pain strike of an option chain: the
// settlement price at which the aggregate payout to option holders is smallest.
//
// Candidate settlement prices are restricted to the strikes present in the
// data. Every candidate is evaluated against every strike, so the work is
// O(S²) in the number of distinct strikes S. Real chains stay in the low
// hundreds of strikes; prefix sums over the sorted strikes would bring this to
// O(S) if much larger chains ever need it.
//
// The engine is a pure function of its input and safe for concurrent use.
package maxpain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/open_interest/internal/models"
)

// DefaultMinRecords is used when Options.MinRecords is not positive.
const DefaultMinRecords = 10

// TieBreak picks the winner when several strikes share the minimal loss.
type TieBreak int

const (
	// LowestStrike returns the smallest strike among the minima.
	LowestStrike TieBreak = iota
	// HighestStrike returns the largest strike among the minima.
	HighestStrike
)

// String returns the config spelling of the tie-break policy.
func (t TieBreak) String() string {
	if t == HighestStrike {
		return "highest"
	}
	return "lowest"
}

// ParseTieBreak accepts "lowest" or "highest".
func ParseTieBreak(s string) (TieBreak, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lowest":
		return LowestStrike, true
	case "highest":
		return HighestStrike, true
	}
	return LowestStrike, false
}

// Options configures a single computation.
type Options struct {
	// Expiration restricts the computation to one expiration date (YYYY-MM-DD).
	Expiration string
	// MinRecords is the minimum number of records left after filtering.
	MinRecords int
	Malformed  MalformedPolicy
	TieBreak   TieBreak
}

func (o Options) minRecords() int {
	if o.MinRecords <= 0 {
		return DefaultMinRecords
	}
	return o.MinRecords
}

// AggregatedStrikeRow sums open interest per side at one strike.
type AggregatedStrikeRow struct {
	Strike           float64 `json:"strike"`
	PutOpenInterest  int64   `json:"put_open_interest"`
	CallOpenInterest int64   `json:"call_open_interest"`
}

// Result is the outcome of a max-pain computation.
type Result struct {
	// Strike is the max-pain strike.
	Strike float64 `json:"max_pain"`
	// Loss is the aggregate holder payout if the underlying settles at Strike.
	Loss     float64 `json:"loss"`
	Strikes  int     `json:"strikes"`
	Records  int     `json:"records"`
	Skipped  int     `json:"skipped"`
	TieBreak string  `json:"tie_break"`
}

// ComputeRaw normalizes raw feed rows and computes max pain over them.
// An empty input yields a nil result and a nil error.
func ComputeRaw(raw []models.RawRecord, opts Options) (*Result, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	records, skipped, err := Normalize(raw, opts.Malformed)
	if err != nil {
		return nil, err
	}
	res, err := compute(records, opts)
	if err != nil {
		return nil, err
	}
	res.Skipped = len(skipped)
	return res, nil
}

// Compute validates typed records under opts.Malformed and computes max pain.
// An empty input yields a nil result and a nil error.
func Compute(records []models.ContractRecord, opts Options) (*Result, error) {
	if len(records) == 0 {
		return nil, nil
	}
	valid := make([]models.ContractRecord, 0, len(records))
	skipped := 0
	for i := range records {
		rec := records[i]
		if merr := validateRecord(i, &rec); merr != nil {
			if opts.Malformed == FailFast {
				return nil, merr
			}
			skipped++
			continue
		}
		valid = append(valid, rec)
	}
	res, err := compute(valid, opts)
	if err != nil {
		return nil, err
	}
	res.Skipped = skipped
	return res, nil
}

// compute expects records that already passed validateRecord.
func compute(records []models.ContractRecord, opts Options) (*Result, error) {
	filtered := records
	if exp := strings.TrimSpace(opts.Expiration); exp != "" {
		filtered = make([]models.ContractRecord, 0, len(records))
		for _, r := range records {
			if r.Expiration == exp {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			return nil, &InsufficientDataError{
				Reason:     "no records for specified expiration",
				Expiration: exp,
				MinRecords: opts.minRecords(),
			}
		}
	}

	if len(filtered) < opts.minRecords() {
		return nil, &InsufficientDataError{
			Reason:     "too few records",
			Expiration: strings.TrimSpace(opts.Expiration),
			Records:    len(filtered),
			MinRecords: opts.minRecords(),
		}
	}

	rows := Aggregate(filtered)
	strikes := make([]decimal.Decimal, len(rows))
	for i, row := range rows {
		strikes[i] = decimal.NewFromFloat(row.Strike)
	}

	best := -1
	var bestLoss decimal.Decimal
	for i := range rows {
		loss := lossAt(strikes[i], strikes, rows)
		if best < 0 || loss.LessThan(bestLoss) ||
			(opts.TieBreak == HighestStrike && loss.Equal(bestLoss)) {
			best, bestLoss = i, loss
		}
	}

	return &Result{
		Strike:   rows[best].Strike,
		Loss:     bestLoss.InexactFloat64(),
		Strikes:  len(rows),
		Records:  len(filtered),
		TieBreak: opts.TieBreak.String(),
	}, nil
}

// Aggregate groups records by strike, summing open interest per side.
// Rows come back in ascending strike order; a side with no records is 0.
func Aggregate(records []models.ContractRecord) []AggregatedStrikeRow {
	byStrike := make(map[float64]*AggregatedStrikeRow)
	for _, r := range records {
		row, ok := byStrike[r.Strike]
		if !ok {
			row = &AggregatedStrikeRow{Strike: r.Strike}
			byStrike[r.Strike] = row
		}
		switch r.Type {
		case models.OptionTypePut:
			row.PutOpenInterest += r.OpenInterest
		case models.OptionTypeCall:
			row.CallOpenInterest += r.OpenInterest
		}
	}

	rows := make([]AggregatedStrikeRow, 0, len(byStrike))
	for _, row := range byStrike {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Strike < rows[j].Strike })
	return rows
}

// Loss returns the aggregate holder payout if the underlying settles at price.
func Loss(rows []AggregatedStrikeRow, price float64) float64 {
	strikes := make([]decimal.Decimal, len(rows))
	for i, row := range rows {
		strikes[i] = decimal.NewFromFloat(row.Strike)
	}
	return lossAt(decimal.NewFromFloat(price), strikes, rows).InexactFloat64()
}

// lossAt sums max(0, s-k)*call_oi(k) + max(0, k-s)*put_oi(k) over every strike k.
func lossAt(s decimal.Decimal, strikes []decimal.Decimal, rows []AggregatedStrikeRow) decimal.Decimal {
	total := decimal.Zero
	for i, k := range strikes {
		switch {
		case s.GreaterThan(k) && rows[i].CallOpenInterest > 0:
			total = total.Add(s.Sub(k).Mul(decimal.NewFromInt(rows[i].CallOpenInterest)))
		case k.GreaterThan(s) && rows[i].PutOpenInterest > 0:
			total = total.Add(k.Sub(s).Mul(decimal.NewFromInt(rows[i].PutOpenInterest)))
		}
	}
	return total
}
