package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ValuationSnapshot is one point of a portfolio's value history. Live
// snapshots carry the full valuation; backfilled historical slots carry
// total_value only (the series consumers chart the value curve and nothing
// else). The (portfolio_id, as_of) unique constraint is the final guard
// against concurrent reconcilers inserting the same slot.
type ValuationSnapshot struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PortfolioID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_snapshot_portfolio_time;index:ix_snapshots_portfolio_time,priority:1" json:"portfolioId"`
	AsOf        time.Time `gorm:"type:timestamptz;not null;uniqueIndex:uq_snapshot_portfolio_time;index:ix_snapshots_portfolio_time,priority:2" json:"asOf"`

	TotalValue     decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"totalValue"`
	TotalCostBasis decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"totalCostBasis"`
	UnrealizedPL   decimal.Decimal `gorm:"column:unrealized_pl;type:numeric(20,8);not null" json:"unrealizedPL"`

	DailyPL            *decimal.Decimal `gorm:"column:daily_pl;type:numeric(20,8)" json:"dailyPL,omitempty"`
	AllocationByType   datatypes.JSON   `gorm:"type:jsonb" json:"allocationByType,omitempty"`
	AllocationBySector datatypes.JSON   `gorm:"type:jsonb" json:"allocationBySector,omitempty"`
	TopMovers          datatypes.JSON   `gorm:"type:jsonb" json:"topMovers,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
}

func (ValuationSnapshot) TableName() string {
	return "portfolio_valuation_snapshots"
}
