package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finquest/internal/models"
)

// Position is the derived holding state for one instrument. It is never
// stored; it is always recomputed by folding the ordered ledger.
type Position struct {
	InstrumentID uuid.UUID

	Quantity decimal.Decimal

	// AvgCost is the average acquisition price per unit in the trade
	// currency. Sells never change it.
	AvgCost       decimal.Decimal
	TradeCurrency string

	// CostBasisBase is the accumulated acquisition cost in the owner's base
	// currency. Only buys with a captured fx rate contribute; sells never
	// reduce it.
	CostBasisBase decimal.Decimal
}

// ComputePositions folds a ledger already ordered by (executed_at,
// created_at, id) into per-instrument positions.
//
// Buys move the average cost: newAvg = (oldQty*oldAvg + qty*price) / newQty.
// Sells reduce quantity, floored at zero when the ledger oversells, and
// leave the average cost untouched. Instruments that fold to zero quantity
// are dropped from the result.
func ComputePositions(txs []models.Transaction) map[uuid.UUID]Position {
	acc := make(map[uuid.UUID]Position)
	for _, tx := range txs {
		if tx.Quantity.LessThanOrEqual(decimal.Zero) {
			continue
		}
		pos, ok := acc[tx.InstrumentID]
		if !ok {
			pos = Position{
				InstrumentID:  tx.InstrumentID,
				Quantity:      decimal.Zero,
				AvgCost:       decimal.Zero,
				TradeCurrency: tx.TradeCurrency,
				CostBasisBase: decimal.Zero,
			}
		}

		switch tx.Side {
		case models.SideBuy:
			newQty := pos.Quantity.Add(tx.Quantity)
			cost := pos.Quantity.Mul(pos.AvgCost).Add(tx.Quantity.Mul(tx.Price))
			pos.AvgCost = cost.Div(newQty)
			pos.Quantity = newQty
			pos.TradeCurrency = tx.TradeCurrency
			if tx.FxRateToUserBase != nil {
				pos.CostBasisBase = pos.CostBasisBase.
					Add(tx.Quantity.Mul(tx.Price).Mul(*tx.FxRateToUserBase))
			}
		case models.SideSell:
			sellQty := tx.Quantity
			if sellQty.GreaterThan(pos.Quantity) {
				sellQty = pos.Quantity
			}
			pos.Quantity = pos.Quantity.Sub(sellQty)
		default:
			continue
		}
		acc[tx.InstrumentID] = pos
	}

	for id, pos := range acc {
		if !pos.Quantity.IsPositive() {
			delete(acc, id)
		}
	}
	return acc
}
