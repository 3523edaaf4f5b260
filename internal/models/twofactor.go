package models

import (
	"time"

	"github.com/google/uuid"
)

// TwoFactorConfig holds the per-user TOTP state. The secret is stored
// AES-GCM encrypted and excluded from serialization. Enabled only flips to
// true once a correct code has been verified; disabling deletes the row, so
// a user without a config row has no second factor at all.
type TwoFactorConfig struct {
	BaseModel
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	Enabled    bool       `json:"enabled" gorm:"default:false"`
	Secret     string     `json:"-" gorm:"type:text"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	User       User       `json:"-" gorm:"foreignKey:UserID"`
}
