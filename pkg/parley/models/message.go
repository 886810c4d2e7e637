package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageType is the kind of payload a message carries
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// FileDescriptor describes an uploaded file attached to a message
type FileDescriptor struct {
	FileName string `json:"filename"`
	MimeType string `json:"mimetype"`
	Path     string `json:"path"`
}

// Message is either a direct message (ReceiverID set) or a group message
// (GroupID set), never both.
type Message struct {
	ID          uint            `gorm:"primarykey" json:"-"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UUID        string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	SenderID    uint            `gorm:"not null;index" json:"-"`
	ReceiverID  *uint           `gorm:"index" json:"-"`
	GroupID     *uint           `gorm:"index" json:"-"`
	Content     string          `gorm:"type:text" json:"content"`
	File        *FileDescriptor `gorm:"serializer:json" json:"file,omitempty"`
	MessageType MessageType     `gorm:"type:varchar(10);not null;default:'text'" json:"message_type"`
	Active      bool            `gorm:"not null;default:true;index" json:"active"`

	// Relationships
	Sender   User   `gorm:"foreignKey:SenderID" json:"-"`
	Receiver *User  `gorm:"foreignKey:ReceiverID" json:"-"`
	Group    *Group `gorm:"foreignKey:GroupID" json:"-"`
}

// BeforeCreate assigns the public identifier
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == "" {
		m.UUID = uuid.NewString()
	}
	return nil
}
