package models

import (
	"time"
)

// GroupRole represents a user's role within a specific group
type GroupRole string

const (
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

// Valid reports whether r is a known role
func (r GroupRole) Valid() bool {
	return r == GroupRoleAdmin || r == GroupRoleMember
}

// GroupMembership links a user to a group. The (user, group) pair is unique:
// removing a member flips Active instead of deleting the row.
type GroupMembership struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_group" json:"user_id"`
	GroupID   uint      `gorm:"not null;uniqueIndex:idx_user_group;index:idx_group_active" json:"group_id"`
	Role      GroupRole `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	Active    bool      `gorm:"not null;default:true;index:idx_group_active" json:"active"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group Group `gorm:"foreignKey:GroupID" json:"-"`
}
