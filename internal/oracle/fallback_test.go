package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixed(price string) PriceStrategy {
	return func(context.Context) (*PriceRecord, error) {
		return &PriceRecord{Price: decimal.RequireFromString(price), TS: time.Now().UTC()}, nil
	}
}

func failing() PriceStrategy {
	return func(context.Context) (*PriceRecord, error) {
		return nil, errors.New("boom")
	}
}

func empty() PriceStrategy {
	return func(context.Context) (*PriceRecord, error) {
		return nil, nil
	}
}

func TestFirstPriceReturnsFirstUsable(t *testing.T) {
	rec := FirstPrice(context.Background(), empty(), failing(), fixed("42"), fixed("99"))
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if !rec.Price.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("price got=%s want=42 (first usable wins)", rec.Price)
	}
}

func TestFirstPriceSkipsNonPositive(t *testing.T) {
	rec := FirstPrice(context.Background(), fixed("0"), fixed("7"))
	if rec == nil || !rec.Price.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("non-positive prices must be skipped, got %+v", rec)
	}
}

func TestFirstPriceAllEmpty(t *testing.T) {
	if rec := FirstPrice(context.Background(), empty(), failing(), nil); rec != nil {
		t.Fatalf("expected nil when every strategy fails, got %+v", rec)
	}
}

func TestFirstPriceHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	counting := func(context.Context) (*PriceRecord, error) {
		calls++
		return &PriceRecord{Price: decimal.NewFromInt(1)}, nil
	}
	if rec := FirstPrice(ctx, counting); rec != nil {
		t.Fatalf("cancelled context must short-circuit, got %+v", rec)
	}
	if calls != 0 {
		t.Fatalf("strategy ran %d times after cancellation", calls)
	}
}
