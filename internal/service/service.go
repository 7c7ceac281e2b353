// Package service resolves the trading date, fetches the chain and runs the
// sentiment and max-pain tools on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/eddiefleurent/open_interest/internal/calendar"
	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/maxpain"
	"github.com/eddiefleurent/open_interest/internal/metrics"
	"github.com/eddiefleurent/open_interest/internal/models"
	"github.com/eddiefleurent/open_interest/internal/sentiment"
)

// Tool names shared by the transports.
const (
	ToolComputeSentiment = "compute_sentiment"
	ToolComputeMaxPain   = "compute_max_pain"
)

// ExpirationNext asks for the nearest weekly expiry on or after the request date.
const ExpirationNext = "next"

const defaultFetchTimeout = 2 * time.Minute

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,15}$`)

// Options wires a Service.
type Options struct {
	Source   marketdata.Source
	Calendar calendar.Oracle
	Location *time.Location
	Now      func() time.Time
	MaxPain  maxpain.Options
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
	// FetchTimeout bounds one upstream fetch including retries.
	FetchTimeout time.Duration
}

// Service runs the analytics tools. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	source       marketdata.Source
	calendar     calendar.Oracle
	loc          *time.Location
	now          func() time.Time
	maxPain      maxpain.Options
	metrics      *metrics.Metrics
	logger       *logrus.Logger
	fetchTimeout time.Duration
}

// New validates opts and creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("service: data source is required")
	}
	s := &Service{
		source:       opts.Source,
		calendar:     opts.Calendar,
		loc:          opts.Location,
		now:          opts.Now,
		maxPain:      opts.MaxPain,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		fetchTimeout: opts.FetchTimeout,
	}
	if s.loc == nil {
		s.loc = calendar.NewYork()
	}
	if s.calendar == nil {
		s.calendar = calendar.NewNYSE(s.loc)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = defaultFetchTimeout
	}
	return s, nil
}

// SentimentResponse is the compute_sentiment result.
type SentimentResponse struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	*sentiment.Result
	Skipped int `json:"skipped"`
}

// MaxPainRequest selects the chain for compute_max_pain. Date defaults to
// the previous trading day; Expiration may be empty, a date, or "next".
type MaxPainRequest struct {
	Symbol     string `json:"symbol"`
	Date       string `json:"date,omitempty"`
	Expiration string `json:"expiration,omitempty"`
}

// MaxPainResponse is the compute_max_pain result.
type MaxPainResponse struct {
	Symbol      string  `json:"symbol"`
	Date        string  `json:"date"`
	Expiration  string  `json:"expiration,omitempty"`
	MaxPain     float64 `json:"max_pain"`
	Description string  `json:"description"`
	Loss        float64 `json:"loss"`
	Strikes     int     `json:"strikes"`
	Records     int     `json:"records"`
	Skipped     int     `json:"skipped"`
	TieBreak    string  `json:"tie_break"`
}

// ComputeSentiment summarizes the put/call open interest of symbol on the
// previous trading day.
func (s *Service) ComputeSentiment(ctx context.Context, symbol string) (resp *SentimentResponse, err error) {
	start := time.Now()
	defer func() { s.observe(ToolComputeSentiment, start, err) }()

	sym, err := validateSymbol(symbol)
	if err != nil {
		return nil, err
	}
	date, err := s.resolveDate(ctx, "")
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(logrus.Fields{"tool": ToolComputeSentiment, "symbol": sym, "date": formatDate(date)})
	log.Info("Calculating put/call ratio")

	raw, err := s.fetch(ctx, sym, date)
	if err != nil {
		return nil, err
	}
	records, skipped, err := maxpain.Normalize(raw, s.maxPain.Malformed)
	if err != nil {
		return nil, err
	}
	s.metrics.AddSkipped(len(skipped))

	res, err := sentiment.Compute(records)
	if err != nil {
		return nil, fmt.Errorf("sentiment for %s on %s: %w", sym, formatDate(date), err)
	}

	log.WithFields(logrus.Fields{"ratio": res.PutCallRatio, "sentiment": res.Sentiment}).Debug("Put/call ratio calculation complete")
	return &SentimentResponse{
		Symbol:  sym,
		Date:    formatDate(date),
		Result:  res,
		Skipped: len(skipped),
	}, nil
}

// ComputeMaxPain finds the max-pain strike of the requested chain.
func (s *Service) ComputeMaxPain(ctx context.Context, req MaxPainRequest) (resp *MaxPainResponse, err error) {
	start := time.Now()
	defer func() { s.observe(ToolComputeMaxPain, start, err) }()

	sym, err := validateSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	date, err := s.resolveDate(ctx, req.Date)
	if err != nil {
		return nil, err
	}
	expiration, err := s.resolveExpiration(ctx, req.Expiration, date)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(logrus.Fields{
		"tool":       ToolComputeMaxPain,
		"symbol":     sym,
		"date":       formatDate(date),
		"expiration": expiration,
	})
	log.Info("Calculating max pain")

	raw, err := s.fetch(ctx, sym, date)
	if err != nil {
		return nil, err
	}

	opts := s.maxPain
	opts.Expiration = expiration
	res, err := maxpain.ComputeRaw(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("max pain for %s on %s: %w", sym, formatDate(date), err)
	}
	s.metrics.AddSkipped(res.Skipped)

	p := message.NewPrinter(language.English)
	log.WithFields(logrus.Fields{"max_pain": res.Strike, "strikes": res.Strikes}).Debug("Max pain calculation complete")
	return &MaxPainResponse{
		Symbol:      sym,
		Date:        formatDate(date),
		Expiration:  expiration,
		MaxPain:     res.Strike,
		Description: p.Sprintf("Max Pain: %.2f - The strike price where option holders collectively lose the most", res.Strike),
		Loss:        res.Loss,
		Strikes:     res.Strikes,
		Records:     res.Records,
		Skipped:     res.Skipped,
		TieBreak:    res.TieBreak,
	}, nil
}

func (s *Service) fetch(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	raw, err := s.source.FetchRecords(fetchCtx, symbol, date)
	if errors.Is(err, marketdata.ErrNoData) {
		return nil, fmt.Errorf("no open interest data found for %s on %s: %w", symbol, formatDate(date), err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch open interest for %s on %s: %w", symbol, formatDate(date), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no open interest data found for %s on %s: %w", symbol, formatDate(date), marketdata.ErrNoData)
	}
	return raw, nil
}

// resolveDate parses an explicit date or defaults to the trading day before
// today in the exchange time zone.
func (s *Service) resolveDate(ctx context.Context, date string) (time.Time, error) {
	if date = strings.TrimSpace(date); date != "" {
		d, err := time.ParseInLocation(calendar.DateLayout, date, s.loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRequest, date)
		}
		return d, nil
	}
	d, err := s.calendar.PreviousTradingDay(ctx, s.now().In(s.loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve previous trading day: %w", err)
	}
	return d, nil
}

func (s *Service) resolveExpiration(ctx context.Context, expiration string, date time.Time) (string, error) {
	expiration = strings.TrimSpace(expiration)
	switch {
	case expiration == "":
		return "", nil
	case strings.EqualFold(expiration, ExpirationNext):
		d, err := calendar.NextOptionExpiry(ctx, s.calendar, calendar.Day(date, s.loc))
		if err != nil {
			return "", fmt.Errorf("resolve next expiry: %w", err)
		}
		return formatDate(d), nil
	}
	if _, err := time.Parse(calendar.DateLayout, expiration); err != nil {
		return "", fmt.Errorf("%w: expiration %q must be YYYY-MM-DD or %q", ErrInvalidRequest, expiration, ExpirationNext)
	}
	return expiration, nil
}

func (s *Service) observe(tool string, start time.Time, err error) {
	outcome := Outcome(err)
	s.metrics.ObserveTool(tool, outcome, time.Since(start))
	if err != nil {
		entry := s.logger.WithError(err).WithFields(logrus.Fields{"tool": tool, "outcome": outcome})
		if outcome == OutcomeError {
			entry.Error("Tool failed")
		} else {
			entry.Warn("Tool returned no result")
		}
	}
}

func validateSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: symbol %q", ErrInvalidRequest, symbol)
	}
	return sym, nil
}

func formatDate(t time.Time) string {
	return t.Format(calendar.DateLayout)
}
