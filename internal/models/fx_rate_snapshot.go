package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FxRateSnapshot caches one observed rate for quote -> base at a point in
// time. Point-in-time lookups take the nearest row at or before as_of.
type FxRateSnapshot struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	BaseCcy  string    `gorm:"type:varchar(3);not null;index:ix_fx_pair_time,priority:1" json:"baseCcy"`
	QuoteCcy string    `gorm:"type:varchar(3);not null;index:ix_fx_pair_time,priority:2" json:"quoteCcy"`
	AsOf     time.Time `gorm:"type:timestamptz;not null;index:ix_fx_pair_time,priority:3" json:"asOf"`

	Rate decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"rate"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
}

func (FxRateSnapshot) TableName() string {
	return "fx_rate_snapshots"
}
