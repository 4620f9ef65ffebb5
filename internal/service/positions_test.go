package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finquest/internal/models"
)

func buyTx(instrumentID uuid.UUID, qty, price string, at time.Time) models.Transaction {
	return models.Transaction{
		ID:            uuid.New(),
		InstrumentID:  instrumentID,
		Side:          models.SideBuy,
		Quantity:      decimal.RequireFromString(qty),
		Price:         decimal.RequireFromString(price),
		TradeCurrency: "USD",
		ExecutedAt:    at,
	}
}

func sellTx(instrumentID uuid.UUID, qty, price string, at time.Time) models.Transaction {
	tx := buyTx(instrumentID, qty, price, at)
	tx.Side = models.SideSell
	return tx
}

func TestComputePositionsAverageCost(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	positions := ComputePositions([]models.Transaction{
		buyTx(inst, "10", "100", t0),
		buyTx(inst, "5", "130", t0.Add(time.Hour)),
	})

	pos, ok := positions[inst]
	if !ok {
		t.Fatalf("expected position for instrument")
	}
	if got := pos.Quantity.String(); got != "15" {
		t.Fatalf("quantity got=%s want=15", got)
	}
	if !pos.AvgCost.Equal(decimal.RequireFromString("110")) {
		t.Fatalf("avg cost got=%s want=110", pos.AvgCost)
	}
}

func TestComputePositionsSellKeepsAvgCost(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	positions := ComputePositions([]models.Transaction{
		buyTx(inst, "10", "100", t0),
		sellTx(inst, "4", "150", t0.Add(time.Hour)),
	})

	pos := positions[inst]
	if got := pos.Quantity.String(); got != "6" {
		t.Fatalf("quantity got=%s want=6", got)
	}
	if !pos.AvgCost.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("avg cost got=%s want=100 (sells must not move it)", pos.AvgCost)
	}
}

func TestComputePositionsOversellFloorsAtZero(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	positions := ComputePositions([]models.Transaction{
		buyTx(inst, "3", "50", t0),
		sellTx(inst, "10", "60", t0.Add(time.Hour)),
	})

	if _, ok := positions[inst]; ok {
		t.Fatalf("fully sold position must be dropped, got %+v", positions[inst])
	}
}

func TestComputePositionsRebuyAfterFlat(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	positions := ComputePositions([]models.Transaction{
		buyTx(inst, "10", "100", t0),
		sellTx(inst, "10", "120", t0.Add(time.Hour)),
		buyTx(inst, "2", "80", t0.Add(2*time.Hour)),
	})

	pos := positions[inst]
	if got := pos.Quantity.String(); got != "2" {
		t.Fatalf("quantity got=%s want=2", got)
	}
	if !pos.AvgCost.Equal(decimal.RequireFromString("80")) {
		t.Fatalf("avg cost got=%s want=80 (fresh lot after going flat)", pos.AvgCost)
	}
}

func TestComputePositionsCapturedCostBasis(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	fx := decimal.RequireFromString("1.35")

	withFx := buyTx(inst, "10", "100", t0)
	withFx.TradeCurrency = "CAD"
	withFx.FxRateToUserBase = &fx
	withoutFx := buyTx(inst, "10", "100", t0.Add(time.Hour))
	withoutFx.TradeCurrency = "CAD"

	positions := ComputePositions([]models.Transaction{withFx, withoutFx})

	pos := positions[inst]
	// Only the fx-stamped buy contributes: 10 * 100 * 1.35.
	if !pos.CostBasisBase.Equal(decimal.RequireFromString("1350")) {
		t.Fatalf("captured cost got=%s want=1350", pos.CostBasisBase)
	}
}

func TestComputePositionsSellKeepsCapturedCost(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	fx := decimal.NewFromInt(2)

	buy := buyTx(inst, "10", "100", t0)
	buy.FxRateToUserBase = &fx

	positions := ComputePositions([]models.Transaction{
		buy,
		sellTx(inst, "5", "110", t0.Add(time.Hour)),
	})

	pos := positions[inst]
	if got := pos.Quantity.String(); got != "5" {
		t.Fatalf("quantity got=%s want=5", got)
	}
	// The accumulator only ever grows on fx-stamped buys: 10 * 100 * 2.
	if !pos.CostBasisBase.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("captured cost got=%s want=2000 (sells never reduce it)", pos.CostBasisBase)
	}
}

func TestComputePositionsIgnoresNonPositiveQuantity(t *testing.T) {
	inst := uuid.New()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

	bad := buyTx(inst, "1", "100", t0)
	bad.Quantity = decimal.Zero

	positions := ComputePositions([]models.Transaction{bad})
	if len(positions) != 0 {
		t.Fatalf("zero-quantity rows must be ignored, got %d positions", len(positions))
	}
}
