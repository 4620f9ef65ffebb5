package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is one observed price for an instrument. DayChange fields are
// only present when the source exposes them.
type PriceRecord struct {
	Price        decimal.Decimal
	TS           time.Time
	DayChangeAbs *decimal.Decimal
	DayChangePct *decimal.Decimal
}

// EODBar is one daily history bar.
type EODBar struct {
	Date   time.Time
	Open   *decimal.Decimal
	High   *decimal.Decimal
	Low    *decimal.Decimal
	Close  decimal.Decimal
	Volume *decimal.Decimal
}

// ResolvedInstrument is the metadata the oracle can attach to a raw symbol.
type ResolvedInstrument struct {
	Type        string
	Symbol      string
	Name        *string
	ExchangeMIC *string
	Currency    string
	Sector      *string
	Industry    *string
	Country     *string
}

// Oracle is the price/FX capability injected into the valuation components.
// It may be stale, missing data, or slow; callers must treat a nil record,
// a nil rate, and an error identically as "unavailable" and fall back.
type Oracle interface {
	// GetPrice returns a price for the symbol, at asOf when given, else the
	// latest available. Returns (nil, nil) when no price exists.
	GetPrice(ctx context.Context, symbol string, asOf *time.Time) (*PriceRecord, error)

	// GetDailyHistory returns daily bars for [start, end], ascending.
	GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]EODBar, error)

	// GetFxRate returns the rate converting one unit of quote currency into
	// base currency at asOf. Returns (nil, nil) when unavailable. Callers
	// short-circuit the same-currency case before reaching the oracle.
	GetFxRate(ctx context.Context, base, quote string, asOf time.Time) (*decimal.Decimal, error)

	// ResolveSymbol returns best-effort metadata for a raw symbol.
	ResolveSymbol(ctx context.Context, raw string) (*ResolvedInstrument, error)
}
