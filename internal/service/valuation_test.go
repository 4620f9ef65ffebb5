package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finquest/internal/models"
)

func strPtr(s string) *string { return &s }

func seedPricedInstrument(repo *fakeRepo, symbol, typ string, sector *string, price string, dayChange *string) *models.Instrument {
	inst := &models.Instrument{
		ID:       uuid.New(),
		Type:     typ,
		Symbol:   symbol,
		Currency: "USD",
		Sector:   sector,
	}
	repo.instruments[inst.ID] = inst
	latest := &models.InstrumentPriceLatest{
		InstrumentID: inst.ID,
		Price:        decimal.RequireFromString(price),
		TS:           time.Now().UTC(),
	}
	if dayChange != nil {
		abs := decimal.RequireFromString(*dayChange)
		latest.DayChangeAbs = &abs
	}
	repo.latest[inst.ID] = latest
	return inst
}

func holding(inst *models.Instrument, qty string) Position {
	return Position{
		InstrumentID:  inst.ID,
		Quantity:      decimal.RequireFromString(qty),
		AvgCost:       decimal.RequireFromString("100"),
		TradeCurrency: "USD",
	}
}

func newValuationService(repo *fakeRepo) *ValuationService {
	ora := &fakeOracle{}
	return &ValuationService{
		Repo:    repo,
		Pricing: &PricingService{Repo: repo, Oracle: ora},
		Fx:      &FxService{Repo: repo, Oracle: ora},
	}
}

func TestValueEmptyPortfolio(t *testing.T) {
	svc := newValuationService(newFakeRepo())
	user := models.User{BaseCurrency: "USD"}

	out, err := svc.Value(context.Background(), user, nil)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if !out.TotalValue.IsZero() || !out.UnrealizedPL.IsZero() {
		t.Fatalf("empty portfolio must value to zero, got %+v", out)
	}
	if out.Positions == nil || out.BestMovers == nil || out.WorstMovers == nil {
		t.Fatalf("empty portfolio must still carry empty slices")
	}
}

func TestValueTotalsAndUnrealizedPL(t *testing.T) {
	repo := newFakeRepo()
	svc := newValuationService(repo)
	user := models.User{BaseCurrency: "USD"}

	inst := seedPricedInstrument(repo, "AAPL", models.InstrumentTypeEquity, nil, "110", strPtr("2"))
	positions := map[uuid.UUID]Position{inst.ID: holding(inst, "10")}

	out, err := svc.Value(context.Background(), user, positions)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if !out.TotalValue.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("total value got=%s want=1100", out.TotalValue)
	}
	if !out.TotalCostBasis.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("cost basis got=%s want=1000", out.TotalCostBasis)
	}
	if !out.UnrealizedPL.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unrealized pl got=%s want=100", out.UnrealizedPL)
	}
	if !out.DailyPL.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("daily pl got=%s want=20 (2 * 10 shares)", out.DailyPL)
	}
}

func TestValueAllocationNormalization(t *testing.T) {
	repo := newFakeRepo()
	svc := newValuationService(repo)
	user := models.User{BaseCurrency: "USD"}

	// 300 equity with a sector, 100 crypto without one.
	tech := seedPricedInstrument(repo, "MSFT", models.InstrumentTypeEquity, strPtr("Technology"), "300", nil)
	coin := seedPricedInstrument(repo, "BTC-USD", models.InstrumentTypeCrypto, nil, "100", nil)
	positions := map[uuid.UUID]Position{
		tech.ID: holding(tech, "1"),
		coin.ID: holding(coin, "1"),
	}

	out, err := svc.Value(context.Background(), user, positions)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if got := out.AllocationByType[models.InstrumentTypeEquity]; !got.Equal(decimal.RequireFromString("0.75")) {
		t.Fatalf("equity weight got=%s want=0.75 (share of whole portfolio)", got)
	}
	if got := out.AllocationByType[models.InstrumentTypeCrypto]; !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("crypto weight got=%s want=0.25", got)
	}
	// Sector weights renormalize over the sector-known subset.
	if got := out.AllocationBySector["Technology"]; !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("sector weight got=%s want=1", got)
	}
}

func TestValueSkipsUnpricedPosition(t *testing.T) {
	repo := newFakeRepo()
	svc := newValuationService(repo)
	user := models.User{BaseCurrency: "USD"}

	priced := seedPricedInstrument(repo, "AAPL", models.InstrumentTypeEquity, nil, "100", nil)
	unpriced := &models.Instrument{
		ID:       uuid.New(),
		Type:     models.InstrumentTypeEquity,
		Symbol:   "GHOST",
		Currency: "USD",
	}
	repo.instruments[unpriced.ID] = unpriced

	positions := map[uuid.UUID]Position{
		priced.ID:   holding(priced, "1"),
		unpriced.ID: holding(unpriced, "1"),
	}

	out, err := svc.Value(context.Background(), user, positions)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if len(out.Positions) != 1 {
		t.Fatalf("positions got=%d want=1 (unpriced omitted)", len(out.Positions))
	}
	if !out.TotalValue.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total value got=%s want=100", out.TotalValue)
	}
}

func TestBestWorstMoversOrderAndCap(t *testing.T) {
	pl := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}
	positions := []PositionValuation{
		{Symbol: "A", DailyPL: pl("5")},
		{Symbol: "B", DailyPL: pl("-50")},
		{Symbol: "C", DailyPL: pl("30")},
		{Symbol: "D", DailyPL: pl("-8")},
		{Symbol: "E", DailyPL: pl("1")},
		{Symbol: "F", DailyPL: pl("2")},
		{Symbol: "G", DailyPL: pl("0")},
		{Symbol: "H"},
		{Symbol: "I", DailyPL: pl("-5")},
		{Symbol: "J", DailyPL: pl("-1")},
	}

	best, worst := bestWorstMovers(positions)
	if len(best) != 3 {
		t.Fatalf("best got=%d want=3 (E drops off the cap)", len(best))
	}
	if best[0].Symbol != "C" || best[1].Symbol != "A" || best[2].Symbol != "F" {
		t.Fatalf("best order got=[%s %s %s] want=[C A F]",
			best[0].Symbol, best[1].Symbol, best[2].Symbol)
	}
	// Losses cut to B(-50), D(-8), I(-5) by magnitude, then reversed so the
	// most-negative move closes the list. J drops off the cap; flat and
	// unknown moves are excluded.
	if len(worst) != 3 {
		t.Fatalf("worst got=%d want=3", len(worst))
	}
	if worst[0].Symbol != "I" || worst[1].Symbol != "D" || worst[2].Symbol != "B" {
		t.Fatalf("worst order got=[%s %s %s] want=[I D B]",
			worst[0].Symbol, worst[1].Symbol, worst[2].Symbol)
	}
}

func TestTopMoversFlattensBestThenWorst(t *testing.T) {
	abs := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	v := Valuation{
		BestMovers:  []Mover{{Symbol: "C", Abs: abs("30")}},
		WorstMovers: []Mover{{Symbol: "B", Abs: abs("-50")}},
	}
	movers := v.TopMovers()
	if len(movers) != 2 || movers[0].Symbol != "C" || movers[1].Symbol != "B" {
		t.Fatalf("flattened movers got=%+v want [C B]", movers)
	}
}
