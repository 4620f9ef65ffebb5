package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finquest/internal/models"
	"finquest/internal/oracle"
	"finquest/internal/repository"
)

const topMoversCount = 3

// PositionValuation is one valued holding, all money in the owner's base
// currency unless named otherwise.
type PositionValuation struct {
	InstrumentID uuid.UUID        `json:"instrumentId"`
	Symbol       string           `json:"symbol"`
	Type         string           `json:"type"`
	Sector       *string          `json:"sector,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity"`
	AvgCost      decimal.Decimal  `json:"avgCost"`
	Currency     string           `json:"currency"`
	Price        decimal.Decimal  `json:"price"`
	Value        decimal.Decimal  `json:"value"`
	CostBasis    decimal.Decimal  `json:"costBasis"`
	CapturedCost decimal.Decimal  `json:"capturedCost"`
	UnrealizedPL decimal.Decimal  `json:"unrealizedPL"`
	DailyPL      *decimal.Decimal `json:"dailyPL,omitempty"`
	DayChangePct *decimal.Decimal `json:"dayChangePct,omitempty"`
}

type Mover struct {
	Symbol string           `json:"symbol"`
	Abs    decimal.Decimal  `json:"abs"`
	Pct    *decimal.Decimal `json:"pct,omitempty"`
}

// Valuation is a full mark-to-market of a portfolio at an instant.
type Valuation struct {
	AsOf         time.Time       `json:"asOf"`
	BaseCurrency string          `json:"baseCurrency"`
	TotalValue   decimal.Decimal `json:"totalValue"`

	// TotalCostBasis converts each position's trade-currency cost at the
	// current FX rate. Historical FX would be more precise; the captured
	// per-buy cost is exposed per position for callers that want it.
	TotalCostBasis decimal.Decimal `json:"totalCostBasis"`
	UnrealizedPL   decimal.Decimal `json:"unrealizedPL"`
	DailyPL        decimal.Decimal `json:"dailyPL"`

	Positions          []PositionValuation        `json:"positions"`
	AllocationByType   map[string]decimal.Decimal `json:"allocationByType"`
	AllocationBySector map[string]decimal.Decimal `json:"allocationBySector"`
	BestMovers         []Mover                    `json:"bestMovers"`
	WorstMovers        []Mover                    `json:"worstMovers"`
}

// TopMovers is the flattened gains-then-losses list stored on snapshots.
func (v Valuation) TopMovers() []Mover {
	out := make([]Mover, 0, len(v.BestMovers)+len(v.WorstMovers))
	out = append(out, v.BestMovers...)
	out = append(out, v.WorstMovers...)
	return out
}

// ValuationService marks positions to market in the owner's base currency.
type ValuationService struct {
	Repo    repository.Repository
	Pricing *PricingService
	Fx      *FxService
	Logger  *zap.Logger
}

// Value prices every position and aggregates portfolio totals. A position
// whose price cannot be resolved is logged and left out of every total; an
// unresolvable FX rate is treated the same way. An empty positions map
// yields a zeroed valuation.
func (s *ValuationService) Value(ctx context.Context, user models.User, positions map[uuid.UUID]Position) (Valuation, error) {
	out := Valuation{
		AsOf:               time.Now().UTC(),
		BaseCurrency:       user.BaseCurrency,
		TotalValue:         decimal.Zero,
		TotalCostBasis:     decimal.Zero,
		UnrealizedPL:       decimal.Zero,
		DailyPL:            decimal.Zero,
		Positions:          []PositionValuation{},
		AllocationByType:   map[string]decimal.Decimal{},
		AllocationBySector: map[string]decimal.Decimal{},
		BestMovers:         []Mover{},
		WorstMovers:        []Mover{},
	}
	if s == nil || len(positions) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	instruments, err := s.Repo.ListInstrumentsByIDs(ctx, ids)
	if err != nil {
		return out, err
	}
	byID := make(map[uuid.UUID]models.Instrument, len(instruments))
	for _, inst := range instruments {
		byID[inst.ID] = inst
	}

	sectorValue := decimal.Zero
	for _, id := range ids {
		pos := positions[id]
		inst, ok := byID[id]
		if !ok {
			continue
		}
		rec := s.Pricing.LatestPrice(ctx, inst)
		if rec == nil {
			if s.Logger != nil {
				s.Logger.Warn("position skipped, no price",
					zap.String("symbol", inst.Symbol))
			}
			continue
		}
		fx := s.Fx.FxNow(ctx, user.BaseCurrency, pos.TradeCurrency)
		if fx == nil {
			if s.Logger != nil {
				s.Logger.Warn("position skipped, no fx rate",
					zap.String("symbol", inst.Symbol),
					zap.String("quote", pos.TradeCurrency))
			}
			continue
		}

		value := pos.Quantity.Mul(rec.Price).Mul(*fx)
		costBasis := pos.Quantity.Mul(pos.AvgCost).Mul(*fx)

		pv := PositionValuation{
			InstrumentID: inst.ID,
			Symbol:       inst.Symbol,
			Type:         inst.Type,
			Sector:       inst.Sector,
			Quantity:     pos.Quantity,
			AvgCost:      pos.AvgCost,
			Currency:     pos.TradeCurrency,
			Price:        rec.Price,
			Value:        value,
			CostBasis:    costBasis,
			CapturedCost: pos.CostBasisBase,
			UnrealizedPL: value.Sub(costBasis),
			DayChangePct: rec.DayChangePct,
		}

		if dayPL := s.dailyPL(ctx, inst, pos, rec, *fx); dayPL != nil {
			pv.DailyPL = dayPL
			out.DailyPL = out.DailyPL.Add(*dayPL)
		}

		out.TotalValue = out.TotalValue.Add(value)
		out.TotalCostBasis = out.TotalCostBasis.Add(costBasis)
		out.AllocationByType[inst.Type] = out.AllocationByType[inst.Type].Add(value)
		if inst.Sector != nil && *inst.Sector != "" {
			out.AllocationBySector[*inst.Sector] = out.AllocationBySector[*inst.Sector].Add(value)
			sectorValue = sectorValue.Add(value)
		}
		out.Positions = append(out.Positions, pv)
	}

	out.UnrealizedPL = out.TotalValue.Sub(out.TotalCostBasis)
	sort.Slice(out.Positions, func(i, j int) bool {
		return out.Positions[i].Symbol < out.Positions[j].Symbol
	})

	// Type weights are shares of the whole portfolio; sector weights are
	// renormalized over the sector-known subset so they still sum to one.
	normalizeWeights(out.AllocationByType, out.TotalValue)
	normalizeWeights(out.AllocationBySector, sectorValue)

	out.BestMovers, out.WorstMovers = bestWorstMovers(out.Positions)
	return out, nil
}

// dailyPL prefers the quote's own day change; when absent it derives the
// change from the previous close. Unknown stays unknown and contributes
// zero to the portfolio total.
func (s *ValuationService) dailyPL(ctx context.Context, inst models.Instrument, pos Position, rec *oracle.PriceRecord, fx decimal.Decimal) *decimal.Decimal {
	if rec.DayChangeAbs != nil {
		v := rec.DayChangeAbs.Mul(pos.Quantity).Mul(fx)
		return &v
	}
	prev := oracle.FirstPrice(ctx, s.Pricing.previousClose(inst))
	if prev == nil || !prev.Price.IsPositive() {
		return nil
	}
	v := rec.Price.Sub(prev.Price).Mul(pos.Quantity).Mul(fx)
	return &v
}

func normalizeWeights(weights map[string]decimal.Decimal, total decimal.Decimal) {
	if !total.IsPositive() {
		for k := range weights {
			delete(weights, k)
		}
		return
	}
	for k, v := range weights {
		weights[k] = v.Div(total)
	}
}

// bestWorstMovers splits positions with a known daily move into the three
// largest gains and the three largest losses. Gains are ranked biggest
// first; losses are cut by magnitude and then reversed, so the smallest
// loss leads and the most-negative closes the list. Flat moves belong to
// neither.
func bestWorstMovers(positions []PositionValuation) (best, worst []Mover) {
	moved := make([]PositionValuation, 0, len(positions))
	for _, pv := range positions {
		if pv.DailyPL != nil {
			moved = append(moved, pv)
		}
	}
	sort.Slice(moved, func(i, j int) bool {
		return moved[i].DailyPL.Abs().GreaterThan(moved[j].DailyPL.Abs())
	})
	best = []Mover{}
	worst = []Mover{}
	for _, pv := range moved {
		mover := Mover{Symbol: pv.Symbol, Abs: *pv.DailyPL, Pct: pv.DayChangePct}
		switch {
		case pv.DailyPL.IsPositive() && len(best) < topMoversCount:
			best = append(best, mover)
		case pv.DailyPL.IsNegative() && len(worst) < topMoversCount:
			worst = append(worst, mover)
		}
	}
	for i, j := 0, len(worst)-1; i < j; i, j = i+1, j-1 {
		worst[i], worst[j] = worst[j], worst[i]
	}
	return best, worst
}
