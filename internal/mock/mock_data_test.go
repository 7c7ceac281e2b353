package mock

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/maxpain"
	"github.com/eddiefleurent/open_interest/internal/models"
	"github.com/eddiefleurent/open_interest/internal/sentiment"
)

var tuesday = time.Date(2025, time.April, 22, 0, 0, 0, 0, time.UTC)

func TestDataProvider_FetchRecords_Shape(t *testing.T) {
	provider := NewDataProvider()

	records, err := provider.FetchRecords(context.Background(), "spy", tuesday)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	want := defaultExpirations * (2*defaultStrikesPerSide + 1) * 2
	if len(records) != want {
		t.Fatalf("len(records) = %d, want %d", len(records), want)
	}

	first := records[0]
	if first.Get(models.ColumnSymbol) != "SPY" {
		t.Errorf("symbol = %q, want SPY", first.Get(models.ColumnSymbol))
	}
	if first.Get(models.ColumnExpiration) != "2025-04-25" {
		t.Errorf("first expiration = %q, want 2025-04-25", first.Get(models.ColumnExpiration))
	}
	if last := records[len(records)-1].Get(models.ColumnExpiration); last != "2025-05-16" {
		t.Errorf("last expiration = %q, want 2025-05-16", last)
	}
}

func TestDataProvider_FetchRecords_Deterministic(t *testing.T) {
	provider := NewDataProvider()
	ctx := context.Background()

	a, err := provider.FetchRecords(ctx, "SPY", tuesday)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	b, err := provider.FetchRecords(ctx, "SPY", tuesday)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same symbol and date produced different chains")
	}

	c, err := provider.FetchRecords(ctx, "SPY", tuesday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different dates produced identical chains")
	}
}

func TestDataProvider_FetchRecords_Errors(t *testing.T) {
	provider := NewDataProvider()

	if _, err := provider.FetchRecords(context.Background(), " ", tuesday); !errors.Is(err, marketdata.ErrSymbolRequired) {
		t.Errorf("blank symbol error = %v, want ErrSymbolRequired", err)
	}

	saturday := time.Date(2025, time.April, 19, 0, 0, 0, 0, time.UTC)
	if _, err := provider.FetchRecords(context.Background(), "SPY", saturday); !errors.Is(err, marketdata.ErrNoData) {
		t.Errorf("weekend error = %v, want ErrNoData", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := provider.FetchRecords(ctx, "SPY", tuesday); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled error = %v, want context.Canceled", err)
	}
}

func TestDataProvider_FeedsAnalytics(t *testing.T) {
	provider := NewDataProvider()
	raw, err := provider.FetchRecords(context.Background(), "QQQ", tuesday)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}

	res, err := maxpain.ComputeRaw(raw, maxpain.Options{Expiration: "2025-04-25"})
	if err != nil {
		t.Fatalf("ComputeRaw: %v", err)
	}
	if res.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", res.Skipped)
	}
	if res.Strikes != 2*defaultStrikesPerSide+1 {
		t.Errorf("strikes = %d, want %d", res.Strikes, 2*defaultStrikesPerSide+1)
	}

	records, _, err := maxpain.Normalize(raw, maxpain.SkipMalformed)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if _, err := sentiment.Compute(records); err != nil {
		t.Errorf("sentiment.Compute: %v", err)
	}
}

func TestFridaysAfter(t *testing.T) {
	friday := time.Date(2025, time.April, 25, 0, 0, 0, 0, time.UTC)
	got := fridaysAfter(friday, 2)
	if got[0].Format("2006-01-02") != "2025-05-02" || got[1].Format("2006-01-02") != "2025-05-09" {
		t.Errorf("fridaysAfter(Friday) = %v", got)
	}
}
