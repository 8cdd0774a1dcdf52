package storage

import (
	"time"

	"gorm.io/datatypes"
)

// CredentialSnapshot is the single durable record the engine keeps per
// installation: the validated server, the bearer tokens and the cached
// profile, written and cleared together.
type CredentialSnapshot struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Key          string         `gorm:"uniqueIndex;not null" json:"key"` // installation namespace, usually "default"
	BaseURL      string         `json:"base_url"`
	APIBase      string         `json:"api_base"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	Profile      datatypes.JSON `json:"profile"` // cached user profile, server truth
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (CredentialSnapshot) TableName() string {
	return "credential_snapshots"
}

// Account is a user record served by the bundled dev server.
type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"`
	Role      string    `gorm:"default:'user'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
