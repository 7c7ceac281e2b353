package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidKey is returned for an empty symbol or a zero date.
var ErrInvalidKey = errors.New("storage: symbol and date are required")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("storage: closed")

const dateLayout = "2006-01-02"

// key normalizes the cache key: upper-case symbol and calendar date.
func key(symbol string, date time.Time) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || date.IsZero() {
		return "", "", ErrInvalidKey
	}
	return symbol, date.Format(dateLayout), nil
}
