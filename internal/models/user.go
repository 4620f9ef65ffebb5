package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// AuthUserID links to the external identity provider's user id. Auth
	// itself is delegated; we only store the mapping.
	AuthUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"authUserId"`

	Email        string  `gorm:"type:varchar(320);not null;uniqueIndex" json:"email"`
	DisplayName  *string `gorm:"type:varchar(120)" json:"displayName,omitempty"`
	Timezone     string  `gorm:"type:varchar(64);not null;default:'America/Toronto'" json:"timezone"`
	BaseCurrency string  `gorm:"type:varchar(3);not null;default:'USD'" json:"baseCurrency"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
	DeletedAt *time.Time `gorm:"type:timestamptz" json:"-"`
}

func (User) TableName() string {
	return "users"
}
