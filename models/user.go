package models

import (
	"time"
)

// UserRecord is the durable per-wallet state owned by the user directory.
// A wallet is created on first login, first task or first link and is never deleted.
type UserRecord struct {
	WalletAddress string  `gorm:"primaryKey;type:varchar(64)" json:"wallet_address"` // base58 ed25519 public key
	ExternalID    *string `gorm:"uniqueIndex;type:varchar(128)" json:"external_id,omitempty"`

	// NextTaskID is the id handed to the next appended task.
	NextTaskID int64 `gorm:"not null" json:"-"`

	Tasks []Task `gorm:"foreignKey:WalletAddress;references:WalletAddress" json:"tasks"`

	Timestamps
}

func (UserRecord) TableName() string { return "relay_users" }

// Linked reports whether the record carries an external chat identity.
func (u *UserRecord) Linked() bool {
	return u != nil && u.ExternalID != nil && *u.ExternalID != ""
}

// Task is one entry of a user's todo list. Ids are unique per wallet.
type Task struct {
	WalletAddress string    `gorm:"primaryKey;type:varchar(64)" json:"-"`
	ID            int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	Done          bool      `gorm:"not null" json:"done"`
	CreatedAt     time.Time `json:"-" gorm:"autoCreateTime"`
}

func (Task) TableName() string { return "relay_tasks" }

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
