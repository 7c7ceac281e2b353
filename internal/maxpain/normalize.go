package maxpain

import (
	"math"
	"strconv"
	"strings"

	"github.com/eddiefleurent/open_interest/internal/models"
	"github.com/eddiefleurent/open_interest/internal/util"
)

// MalformedPolicy selects what happens to records that cannot be coerced.
type MalformedPolicy int

const (
	// SkipMalformed drops bad rows and reports them alongside the result.
	SkipMalformed MalformedPolicy = iota
	// FailFast aborts on the first bad row.
	FailFast
)

// String returns the config spelling of the policy.
func (p MalformedPolicy) String() string {
	if p == FailFast {
		return "fail"
	}
	return "skip"
}

// ParseMalformedPolicy accepts "skip" or "fail".
func ParseMalformedPolicy(s string) (MalformedPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipMalformed, true
	case "fail", "fail_fast", "fail-fast":
		return FailFast, true
	}
	return SkipMalformed, false
}

// Normalize coerces raw feed rows into ContractRecords. A missing open
// interest becomes 0; a missing or invalid strike, an unknown type, or an
// unparseable open interest makes the row malformed. Under SkipMalformed the
// bad rows are returned in skipped; under FailFast the first one is the error.
func Normalize(raw []models.RawRecord, policy MalformedPolicy) (
	records []models.ContractRecord, skipped []*MalformedRecordError, err error) {
	records = make([]models.ContractRecord, 0, len(raw))
	for i, r := range raw {
		rec, merr := normalizeRecord(i, r)
		if merr != nil {
			if policy == FailFast {
				return nil, nil, merr
			}
			skipped = append(skipped, merr)
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func normalizeRecord(i int, r models.RawRecord) (models.ContractRecord, *MalformedRecordError) {
	var rec models.ContractRecord

	if exp := r.Get(models.ColumnExpiration); !models.IsNA(exp) {
		rec.Expiration = strings.TrimSpace(exp)
	}

	rawStrike := r.Get(models.ColumnStrike)
	if models.IsNA(rawStrike) {
		return rec, &MalformedRecordError{Index: i, Field: models.ColumnStrike, Value: rawStrike, Reason: "missing"}
	}
	strike, err := strconv.ParseFloat(strings.TrimSpace(rawStrike), 64)
	if err != nil {
		return rec, &MalformedRecordError{Index: i, Field: models.ColumnStrike, Value: rawStrike, Reason: "not a number"}
	}
	rec.Strike = strike

	rawType := r.Get(models.ColumnType)
	optType, ok := models.ParseOptionType(rawType)
	if !ok {
		return rec, &MalformedRecordError{Index: i, Field: models.ColumnType, Value: rawType, Reason: "must be put or call"}
	}
	rec.Type = optType

	rawOI := r.Get(models.ColumnOpenInterest)
	if !models.IsNA(rawOI) {
		oi, merr := parseOpenInterest(i, rawOI)
		if merr != nil {
			return rec, merr
		}
		rec.OpenInterest = oi
	}

	if merr := validateRecord(i, &rec); merr != nil {
		return rec, merr
	}
	return rec, nil
}

// parseOpenInterest accepts integers and integral floats ("12", "12.0").
func parseOpenInterest(i int, v string) (int64, *MalformedRecordError) {
	s := strings.TrimSpace(v)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, &MalformedRecordError{Index: i, Field: models.ColumnOpenInterest, Value: v, Reason: "not an integer"}
	}
	return int64(f), nil
}

// validateRecord checks a typed record and quantizes its strike in place.
func validateRecord(i int, rec *models.ContractRecord) *MalformedRecordError {
	if math.IsNaN(rec.Strike) || math.IsInf(rec.Strike, 0) || util.NormalizeStrike(rec.Strike) <= 0 {
		return &MalformedRecordError{Index: i, Field: models.ColumnStrike,
			Value: strconv.FormatFloat(rec.Strike, 'f', -1, 64), Reason: "must be a positive number"}
	}
	if _, ok := models.ParseOptionType(string(rec.Type)); !ok {
		return &MalformedRecordError{Index: i, Field: models.ColumnType, Value: string(rec.Type), Reason: "must be put or call"}
	}
	if rec.OpenInterest < 0 {
		return &MalformedRecordError{Index: i, Field: models.ColumnOpenInterest,
			Value: strconv.FormatInt(rec.OpenInterest, 10), Reason: "must not be negative"}
	}
	rec.Strike = util.NormalizeStrike(rec.Strike)
	rec.Type, _ = models.ParseOptionType(string(rec.Type))
	return nil
}
