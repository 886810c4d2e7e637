package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account in the directory
type User struct {
	ID           uint      `gorm:"primarykey" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UUID         string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	FCMToken     *string   `gorm:"column:fcm_token" json:"-"` // Push token, nil until the user opts in
}

// BeforeCreate assigns the public identifier
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	return nil
}

// UserSummary is the public projection of a user embedded in responses
type UserSummary struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the public projection of the user
func (u User) Summary() UserSummary {
	return UserSummary{UUID: u.UUID, Name: u.Name, Email: u.Email}
}

// HasPushToken reports whether the user registered a push token
func (u User) HasPushToken() bool {
	return u.FCMToken != nil && *u.FCMToken != ""
}
