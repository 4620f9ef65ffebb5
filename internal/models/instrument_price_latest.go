package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InstrumentPriceLatest struct {
	InstrumentID uuid.UUID       `gorm:"type:uuid;primaryKey" json:"instrumentId"`
	Price        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	TS           time.Time       `gorm:"column:ts;type:timestamptz;not null" json:"ts"`

	DayChangeAbs *decimal.Decimal `gorm:"type:numeric(20,8)" json:"dayChangeAbs,omitempty"`
	DayChangePct *decimal.Decimal `gorm:"type:numeric(10,4)" json:"dayChangePct,omitempty"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
}

func (InstrumentPriceLatest) TableName() string {
	return "instrument_price_latest"
}
