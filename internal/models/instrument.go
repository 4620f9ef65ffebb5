package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	InstrumentTypeEquity = "equity"
	InstrumentTypeETF    = "etf"
	InstrumentTypeCrypto = "crypto"
)

type Instrument struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type string    `gorm:"type:varchar(16);not null;index:ix_instruments_type_sector" json:"type"`

	Symbol      string  `gorm:"type:varchar(24);not null;uniqueIndex:uq_instruments_symbol_exchange" json:"symbol"`
	Name        *string `gorm:"type:varchar(256)" json:"name,omitempty"`
	ExchangeMIC *string `gorm:"type:varchar(20);uniqueIndex:uq_instruments_symbol_exchange" json:"exchangeMic,omitempty"`
	Currency    string  `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Sector      *string `gorm:"type:varchar(120);index:ix_instruments_type_sector" json:"sector,omitempty"`
	Industry    *string `gorm:"type:varchar(120)" json:"industry,omitempty"`
	Country     *string `gorm:"type:varchar(2)" json:"country,omitempty"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
	DeletedAt *time.Time `gorm:"type:timestamptz" json:"-"`
}

func (Instrument) TableName() string {
	return "instruments"
}
