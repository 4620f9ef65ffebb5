package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InstrumentPriceEOD struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	InstrumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_price_eod_instrument_date" json:"instrumentId"`

	// PriceDate is the trading day, stored at UTC midnight.
	PriceDate time.Time `gorm:"type:date;not null;uniqueIndex:uq_price_eod_instrument_date" json:"priceDate"`

	Open   *decimal.Decimal `gorm:"type:numeric(20,8)" json:"open,omitempty"`
	High   *decimal.Decimal `gorm:"type:numeric(20,8)" json:"high,omitempty"`
	Low    *decimal.Decimal `gorm:"type:numeric(20,8)" json:"low,omitempty"`
	Close  decimal.Decimal  `gorm:"type:numeric(20,8);not null" json:"close"`
	Volume *decimal.Decimal `gorm:"type:numeric(28,2)" json:"volume,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
}

func (InstrumentPriceEOD) TableName() string {
	return "instrument_price_eod"
}
