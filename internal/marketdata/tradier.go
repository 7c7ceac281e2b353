package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/open_interest/internal/calendar"
	"github.com/eddiefleurent/open_interest/internal/models"
	"github.com/eddiefleurent/open_interest/internal/tradier"
)

const defaultChainConcurrency = 4

// ChainAPI is the part of the Tradier client the chain source needs.
type ChainAPI interface {
	GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error)
	GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]tradier.Option, error)
}

// TradierOptions configures a Tradier source.
type TradierOptions struct {
	API      ChainAPI
	Calendar calendar.Oracle
	Location *time.Location
	Now      func() time.Time
	Logger   *logrus.Logger
	// Concurrency bounds parallel chain requests (default 4).
	Concurrency int
	// MaxExpirations keeps only the nearest expirations; 0 keeps all.
	MaxExpirations int
}

// Tradier assembles a chain from per-expiration Tradier requests. Tradier
// only serves the live snapshot, so only the latest session can be fetched.
type Tradier struct {
	api            ChainAPI
	calendar       calendar.Oracle
	loc            *time.Location
	now            func() time.Time
	logger         *logrus.Logger
	concurrency    int
	maxExpirations int
}

var _ Source = (*Tradier)(nil)

// NewTradier creates the source.
func NewTradier(opts TradierOptions) (*Tradier, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("tradier source: API client is required")
	}
	t := &Tradier{
		api:            opts.API,
		calendar:       opts.Calendar,
		loc:            opts.Location,
		now:            opts.Now,
		logger:         opts.Logger,
		concurrency:    opts.Concurrency,
		maxExpirations: opts.MaxExpirations,
	}
	if t.loc == nil {
		t.loc = calendar.NewYork()
	}
	if t.calendar == nil {
		t.calendar = calendar.NewNYSE(t.loc)
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.logger == nil {
		t.logger = logrus.StandardLogger()
	}
	if t.concurrency <= 0 {
		t.concurrency = defaultChainConcurrency
	}
	return t, nil
}

// FetchRecords returns every contract of symbol across its expirations.
func (t *Tradier) FetchRecords(ctx context.Context, symbol string, date time.Time) ([]models.RawRecord, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	now := t.now().In(t.loc)
	day := calendar.Day(date, t.loc)
	ok, err := calendar.IsDataAvailable(ctx, t.calendar, day, now)
	if err != nil {
		return nil, fmt.Errorf("check availability of %s: %w", day.Format(calendar.DateLayout), err)
	}
	if !ok {
		return nil, noData("%s has no published data for %s", sym, day.Format(calendar.DateLayout))
	}
	// The live chain carries open interest as of the last close only.
	latest, err := t.calendar.PreviousTradingDay(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("resolve latest session: %w", err)
	}
	if day.Format(calendar.DateLayout) != latest.Format(calendar.DateLayout) {
		return nil, noData("tradier serves only the latest session %s, not %s",
			latest.Format(calendar.DateLayout), day.Format(calendar.DateLayout))
	}

	expirations, err := t.api.GetExpirationsCtx(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("list expirations for %s: %w", sym, err)
	}
	if t.maxExpirations > 0 && len(expirations) > t.maxExpirations {
		expirations = expirations[:t.maxExpirations]
	}
	if len(expirations) == 0 {
		return nil, noData("%s has no listed expirations", sym)
	}

	chains := make([][]models.RawRecord, len(expirations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, exp := range expirations {
		g.Go(func() error {
			opts, err := t.api.GetOptionChainCtx(gctx, sym, exp)
			if err != nil {
				return fmt.Errorf("chain %s %s: %w", sym, exp, err)
			}
			chains[i] = optionsToRecords(opts, sym, exp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []models.RawRecord
	for _, c := range chains {
		records = append(records, c...)
	}
	if len(records) == 0 {
		return nil, noData("%s chains are empty", sym)
	}

	t.logger.WithFields(logrus.Fields{
		"symbol":      sym,
		"expirations": len(expirations),
		"records":     len(records),
	}).Debug("Fetched Tradier chains")
	return records, nil
}

func optionsToRecords(opts []tradier.Option, symbol, expiration string) []models.RawRecord {
	out := make([]models.RawRecord, 0, len(opts))
	for _, o := range opts {
		exp := o.ExpirationDate
		if exp == "" {
			exp = expiration
		}
		underlying := o.Underlying
		if underlying == "" {
			underlying = symbol
		}
		out = append(out, models.RawRecord{
			models.ColumnContractID:   o.Symbol,
			models.ColumnSymbol:       underlying,
			models.ColumnExpiration:   exp,
			models.ColumnStrike:       strconv.FormatFloat(o.Strike, 'f', -1, 64),
			models.ColumnType:         o.OptionType,
			models.ColumnOpenInterest: strconv.FormatInt(o.OpenInterest, 10),
			models.ColumnVolume:       strconv.FormatInt(o.Volume, 10),
		})
	}
	return out
}
