package maxpain

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data to calculate max pain")

// ErrMalformedRecord is matched by every MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed option record")

// InsufficientDataError reports that too few records survived filtering.
type InsufficientDataError struct {
	Reason     string
	Expiration string
	Records    int
	MinRecords int
}

func (e *InsufficientDataError) Error() string {
	if e.Expiration != "" {
		return fmt.Sprintf("%s: %s (expiration %s, %d records, minimum %d)",
			ErrInsufficientData, e.Reason, e.Expiration, e.Records, e.MinRecords)
	}
	return fmt.Sprintf("%s: %s (%d records, minimum %d)",
		ErrInsufficientData, e.Reason, e.Records, e.MinRecords)
}

// Unwrap lets errors.Is match ErrInsufficientData.
func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// MalformedRecordError describes a record whose fields cannot be coerced.
type MalformedRecordError struct {
	Field  string
	Value  string
	Reason string
	Index  int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s at index %d: %s %q: %s", ErrMalformedRecord, e.Index, e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedRecord.
func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }
