// Package retry retries transient market data failures with jittered
// exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/models"
)

// Config controls retry attempts and backoff.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig is used when NewSource gets no Config.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Source decorates a marketdata.Source with retries.
type Source struct {
	next   marketdata.Source
	logger *logrus.Logger
	config Config
}

var _ marketdata.Source = (*Source)(nil)

// NewSource wraps next. Zero durations in config fall back to DefaultConfig.
func NewSource(next marketdata.Source, logger *logrus.Logger, config ...Config) *Source {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Source{
		next:   next,
		logger: logger,
		config: cfg,
	}
}

// FetchRecords calls the wrapped source until it succeeds, fails
// permanently, or the attempts or the overall timeout run out.
func (s *Source) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"symbol": symbol, "date": date.Format("2006-01-02")})

	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		if fetchCtx.Err() != nil {
			return nil, fmt.Errorf("fetch timed out after %v: %w", s.config.Timeout, fetchCtx.Err())
		}

		records, err := s.next.FetchRecords(fetchCtx, symbol, date)
		if err == nil {
			if attempt > 0 {
				log.WithField("attempt", attempt+1).Info("Fetch succeeded after retry")
			}
			return records, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt == s.config.MaxRetries {
			break
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"of":      s.config.MaxRetries + 1,
			"backoff": backoff,
		}).Warn("Transient fetch error, retrying")

		select {
		case <-time.After(backoff):
			backoff = s.calculateNextBackoff(backoff)
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch canceled during backoff: %w", ctx.Err())
		case <-fetchCtx.Done():
			return nil, fmt.Errorf("fetch timed out during backoff: %w", fetchCtx.Err())
		}
	}

	if !IsTransient(lastErr) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("fetch failed after %d attempts: %w", s.config.MaxRetries+1, lastErr)
}

func (s *Source) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > s.config.MaxBackoff {
		backoff = s.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			s.logger.WithError(err).Warn("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

type statusCoder interface {
	HTTPStatus() int
}

// IsTransient reports whether err is worth retrying: timeouts, connection
// failures, HTTP 429 and 5xx. Absent data, open breakers, cancellation and
// other HTTP statuses are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, marketdata.ErrNoData) ||
		errors.Is(err, marketdata.ErrSymbolRequired) ||
		errors.Is(err, context.Canceled) ||
		marketdata.IsBreakerError(err) {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		return status == 429 || status >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"unexpected eof",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
