// Package notifications delivers best-effort push notifications to users'
// registered devices.
package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultTimeout = 5 * time.Second

// Notification is the payload pushed to a device
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Pusher delivers a notification to a single device token
type Pusher interface {
	Push(ctx context.Context, token string, n Notification) error
}

// Dispatcher looks up receivers' push tokens and hands notifications to a
// Pusher. Failures are logged and never returned to the caller.
type Dispatcher struct {
	db      *gorm.DB
	pusher  Pusher
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil pusher disables delivery: every
// send reports false.
func NewDispatcher(db *gorm.DB, pusher Pusher, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{db: db, pusher: pusher, timeout: timeout}
}

// Send delivers n to receiverID and reports whether a push was handed off.
// A receiver without a token yields false without an error.
func (d *Dispatcher) Send(ctx context.Context, receiverID uint, n Notification) bool {
	if d.pusher == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var user models.User
	if err := d.db.WithContext(ctx).Select("id", "uuid", "fcm_token").First(&user, receiverID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithField("receiver_id", receiverID).Warn("Failed to load push token")
		}
		return false
	}
	if !user.HasPushToken() {
		return false
	}

	if err := d.pusher.Push(ctx, *user.FCMToken, n); err != nil {
		logrus.WithError(err).WithField("receiver_uuid", user.UUID).Warn("Push notification failed")
		return false
	}
	return true
}

// DispatchAsync sends n to every receiver in the background with a fresh
// context. The caller never waits on delivery.
func (d *Dispatcher) DispatchAsync(receiverIDs []uint, n Notification) {
	if d.pusher == nil || len(receiverIDs) == 0 {
		return
	}

	ids := append([]uint(nil), receiverIDs...)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, id := range ids {
			d.Send(context.Background(), id, n)
		}
	}()
}

// Wait blocks until in-flight background dispatches finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// RegisterToken stores the device token for userID, replacing any previous one
func (d *Dispatcher) RegisterToken(ctx context.Context, userID uint, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("fcm_token is required")
	}
	return d.setToken(ctx, userID, &token)
}

// ClearToken removes the device token for userID
func (d *Dispatcher) ClearToken(ctx context.Context, userID uint) error {
	return d.setToken(ctx, userID, nil)
}

func (d *Dispatcher) setToken(ctx context.Context, userID uint, token *string) error {
	result := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", token)
	if result.Error != nil {
		return apperr.Internal(result.Error, "Failed to update push token")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}
