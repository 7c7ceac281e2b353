package service

import (
	"errors"

	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/maxpain"
	"github.com/eddiefleurent/open_interest/internal/sentiment"
)

// ErrInvalidRequest marks caller mistakes: bad symbol, date or expiration.
var ErrInvalidRequest = errors.New("invalid request")

// ErrorResponse is the uniform failure payload of every tool.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorPayload converts err into the failure payload.
func ErrorPayload(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{Error: "unknown error"}
	}
	return ErrorResponse{Error: err.Error()}
}

// IsInvalidRequest reports whether err was caused by the request itself.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// Tool outcomes recorded in metrics.
const (
	OutcomeOK               = "ok"
	OutcomeInvalid          = "invalid_request"
	OutcomeNoData           = "no_data"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeMalformed        = "malformed_record"
	OutcomeUndefined        = "ratio_undefined"
	OutcomeError            = "error"
)

// Outcome classifies a tool error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalid
	case errors.Is(err, marketdata.ErrNoData):
		return OutcomeNoData
	case errors.Is(err, maxpain.ErrInsufficientData):
		return OutcomeInsufficientData
	case errors.Is(err, maxpain.ErrMalformedRecord):
		return OutcomeMalformed
	case errors.Is(err, sentiment.ErrRatioUndefined):
		return OutcomeUndefined
	default:
		return OutcomeError
	}
}
