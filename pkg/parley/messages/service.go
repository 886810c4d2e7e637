// Package messages stores direct and group messages and delivers them to
// their recipients.
package messages

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/logging"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/notifications"
	"github.com/parleychat/parley/pkg/parley/users"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	EventMessageNew     = "message:new"
	EventMessageDeleted = "message:deleted"

	previewLength = 100
)

// Notifier schedules push notifications without blocking the caller
type Notifier interface {
	DispatchAsync(receiverIDs []uint, n notifications.Notification)
}

// Broadcaster relays events to connected realtime clients
type Broadcaster interface {
	Broadcast(v any)
}

// Event is the envelope pushed over the realtime relay
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SendInput describes a message to send. Exactly one of ReceiverUUID and
// GroupUUID must be set.
type SendInput struct {
	SenderID     uint
	ReceiverUUID string
	GroupUUID    string
	Content      string
	MessageType  models.MessageType
	File         *models.FileDescriptor
}

// GroupRef identifies the group a message was sent to
type GroupRef struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// MessageView is a message joined with the public summaries of the parties
type MessageView struct {
	UUID        string                 `json:"uuid"`
	Content     string                 `json:"content"`
	File        *models.FileDescriptor `json:"file,omitempty"`
	MessageType models.MessageType     `json:"message_type"`
	Sender      models.UserSummary     `json:"sender"`
	Receiver    *models.UserSummary    `json:"receiver,omitempty"`
	Group       *GroupRef              `json:"group,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ListResult is one page of messages plus the total number available
type ListResult struct {
	Messages []MessageView
	Total    int64
}

// Service is the single path through which messages are created, read and
// removed
type Service struct {
	db          *gorm.DB
	users       *users.Directory
	notifier    Notifier
	broadcaster Broadcaster
}

// NewService creates a message service. Notifier and broadcaster may be nil.
func NewService(db *gorm.DB, notifier Notifier, broadcaster Broadcaster) *Service {
	return &Service{db: db, users: users.NewDirectory(db), notifier: notifier, broadcaster: broadcaster}
}

// Send persists a message and then notifies the recipients
func (s *Service) Send(ctx context.Context, in SendInput) (*MessageView, error) {
	hasReceiver := strings.TrimSpace(in.ReceiverUUID) != ""
	hasGroup := strings.TrimSpace(in.GroupUUID) != ""
	if hasReceiver == hasGroup {
		return nil, apperr.Validation("Exactly one of receiver_uuid or group_uuid is required")
	}

	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}
	if !in.MessageType.Valid() {
		return nil, apperr.Validation("message_type must be one of: text image file")
	}
	if in.MessageType == models.MessageTypeText && strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Validation("content is required")
	}
	if in.MessageType != models.MessageTypeText && in.File == nil {
		return nil, apperr.Validation("file is required for %s messages", in.MessageType)
	}

	db := s.db.WithContext(ctx)

	sender, err := s.users.ByID(ctx, in.SenderID)
	if err != nil {
		return nil, relabelNotFound(err, "Sender not found")
	}

	msg := models.Message{
		SenderID:    sender.ID,
		Content:     in.Content,
		File:        in.File,
		MessageType: in.MessageType,
		Active:      true,
	}

	var receiver *models.User
	var group *models.Group
	var recipients []uint

	if hasReceiver {
		u, err := s.users.ByUUID(ctx, in.ReceiverUUID)
		if err != nil {
			return nil, relabelNotFound(err, "Receiver not found")
		}
		receiver = u
		msg.ReceiverID = &u.ID
		recipients = []uint{u.ID}
	} else {
		var g models.Group
		if err := db.Where("uuid = ? AND active = ?", in.GroupUUID, true).First(&g).Error; err != nil {
			return nil, notFoundOr(err, "Group not found")
		}
		members, err := activeMemberIDs(db, g.ID)
		if err != nil {
			return nil, apperr.Internal(err, "Failed to send message")
		}
		if !containsID(members, sender.ID) {
			return nil, apperr.Forbidden("You are not a member of this group")
		}
		group = &g
		msg.GroupID = &g.ID
		for _, id := range members {
			if id != sender.ID {
				recipients = append(recipients, id)
			}
		}
	}

	if err := db.Omit("Sender", "Receiver", "Group").Create(&msg).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to send message")
	}

	msg.Sender = *sender
	msg.Receiver = receiver
	msg.Group = group
	view := toView(msg)

	logging.Event("message_sent", map[string]interface{}{
		"message_uuid": msg.UUID,
		"sender_uuid":  sender.UUID,
		"group":        group != nil,
	})

	if s.notifier != nil && len(recipients) > 0 {
		s.notifier.DispatchAsync(recipients, notificationFor(view))
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(Event{Type: EventMessageNew, Data: view})
	}

	return &view, nil
}

// List returns the active messages between userID and targetUUID, newest
// first. The target is looked up as a user first (the conversation in both
// directions) and then as a group the caller actively belongs to.
func (s *Service) List(ctx context.Context, userID uint, targetUUID string, limit, offset int) (*ListResult, error) {
	db := s.db.WithContext(ctx)

	other, err := s.users.ByUUID(ctx, targetUUID)
	if err == nil {
		scope := func(tx *gorm.DB) *gorm.DB {
			return tx.Where("active = ? AND group_id IS NULL", true).
				Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
					userID, other.ID, other.ID, userID)
		}
		return s.page(ctx, scope, limit, offset)
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	var group models.Group
	if err := db.Where("uuid = ? AND active = ?", targetUUID, true).First(&group).Error; err != nil {
		return nil, notFoundOr(err, "Conversation not found")
	}
	var count int64
	if err := db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ? AND active = ?", group.ID, userID, true).
		Count(&count).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to fetch messages")
	}
	if count == 0 {
		return nil, apperr.Forbidden("You are not a member of this group")
	}
	return s.ListForGroup(ctx, group.ID, limit, offset)
}

// ListForGroup returns a page of a group's active messages. Membership must
// already have been checked by the caller.
func (s *Service) ListForGroup(ctx context.Context, groupID uint, limit, offset int) (*ListResult, error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("active = ? AND group_id = ?", true, groupID)
	}
	return s.page(ctx, scope, limit, offset)
}

func (s *Service) page(ctx context.Context, scope func(*gorm.DB) *gorm.DB, limit, offset int) (*ListResult, error) {
	var total int64
	var rows []models.Message

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Message{}).Scopes(scope).Count(&total).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Message{}).Scopes(scope).
			Preload("Sender").Preload("Receiver").Preload("Group").
			Order("created_at DESC, id DESC").
			Limit(limit).Offset(offset).
			Find(&rows).Error
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(err, "Failed to fetch messages")
	}

	views := make([]MessageView, len(rows))
	for i, m := range rows {
		views[i] = toView(m)
	}
	return &ListResult{Messages: views, Total: total}, nil
}

// Delete soft-deletes a message. Only its sender may do so.
func (s *Service) Delete(ctx context.Context, messageUUID string, requesterID uint) error {
	db := s.db.WithContext(ctx)

	var msg models.Message
	if err := db.Where("uuid = ? AND active = ?", messageUUID, true).First(&msg).Error; err != nil {
		return notFoundOr(err, "Message not found")
	}
	if msg.SenderID != requesterID {
		return apperr.Forbidden("Only the sender can delete this message")
	}

	if err := db.Model(&models.Message{}).Where("id = ?", msg.ID).Update("active", false).Error; err != nil {
		return apperr.Internal(err, "Failed to delete message")
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(Event{Type: EventMessageDeleted, Data: map[string]string{"uuid": msg.UUID}})
	}
	return nil
}

func activeMemberIDs(db *gorm.DB, groupID uint) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND active = ?", groupID, true).
		Pluck("user_id", &ids).Error
	return ids, err
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func toView(m models.Message) MessageView {
	view := MessageView{
		UUID:        m.UUID,
		Content:     m.Content,
		File:        m.File,
		MessageType: m.MessageType,
		Sender:      m.Sender.Summary(),
		CreatedAt:   m.CreatedAt,
	}
	if m.Receiver != nil {
		summary := m.Receiver.Summary()
		view.Receiver = &summary
	}
	if m.Group != nil {
		view.Group = &GroupRef{UUID: m.Group.UUID, Name: m.Group.Name}
	}
	return view
}

func notificationFor(view MessageView) notifications.Notification {
	title := view.Sender.Name
	if view.Group != nil {
		title = view.Sender.Name + " in " + view.Group.Name
	}

	body := view.Content
	switch view.MessageType {
	case models.MessageTypeImage:
		body = "Sent an image"
	case models.MessageTypeFile:
		body = "Sent a file"
	}
	if r := []rune(body); len(r) > previewLength {
		body = string(r[:previewLength]) + "..."
	}

	data := map[string]string{
		"type":         EventMessageNew,
		"message_uuid": view.UUID,
		"sender_uuid":  view.Sender.UUID,
	}
	if view.Group != nil {
		data["group_uuid"] = view.Group.UUID
	}
	return notifications.Notification{Title: title, Body: body, Data: data}
}

// relabelNotFound names the missing party in a not-found error
func relabelNotFound(err error, message string) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("%s", message)
	}
	return err
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s", message)
	}
	return apperr.Internal(err, message)
}
