package models

import (
	"time"

	"github.com/google/uuid"
)

type Portfolio struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	Name   string    `gorm:"type:varchar(120);not null;default:'My Portfolio'" json:"name"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
	DeletedAt *time.Time `gorm:"type:timestamptz" json:"-"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}
