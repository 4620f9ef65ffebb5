package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Transaction is an immutable ledger entry. Rows are never updated after
// insert, only soft-deleted; position state is always re-derived by
// replaying the ledger in (executed_at, created_at, id) order.
type Transaction struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PortfolioID  uuid.UUID `gorm:"type:uuid;not null;index;index:ix_tx_portfolio_instrument_time,priority:1" json:"portfolioId"`
	InstrumentID uuid.UUID `gorm:"type:uuid;not null;index;index:ix_tx_portfolio_instrument_time,priority:2" json:"instrumentId"`

	Side          string          `gorm:"type:varchar(4);not null" json:"side"`
	Quantity      decimal.Decimal `gorm:"type:numeric(28,10);not null" json:"quantity"`
	Price         decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	TradeCurrency string          `gorm:"type:varchar(3);not null" json:"tradeCurrency"`
	ExecutedAt    time.Time       `gorm:"type:timestamptz;not null;index;index:ix_tx_portfolio_instrument_time,priority:3" json:"executedAt"`

	// FX rate trade currency -> owner base currency captured at execution
	// time. Nil when the rate was unavailable at entry; such buys contribute
	// nothing to the accumulated base-currency cost basis.
	FxRateToUserBase *decimal.Decimal `gorm:"type:numeric(20,10)" json:"fxRateToUserBase,omitempty"`

	Notes *string `gorm:"type:varchar(280)" json:"notes,omitempty"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
	DeletedAt *time.Time `gorm:"type:timestamptz" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
