package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Group is a named chat room. Groups are never removed, only deactivated.
type Group struct {
	ID          uint      `gorm:"primarykey" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UUID        string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Name        string    `gorm:"not null" json:"name"`
	Active      bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedByID uint      `gorm:"not null" json:"-"`

	// Relationships
	CreatedBy   User              `gorm:"foreignKey:CreatedByID" json:"-"`
	Memberships []GroupMembership `gorm:"foreignKey:GroupID" json:"-"`
}

// BeforeCreate assigns the public identifier
func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	return nil
}
