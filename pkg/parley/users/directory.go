// Package users resolves public user identifiers and serves the user listing.
package users

import (
	"context"
	"errors"

	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/models"
	"gorm.io/gorm"
)

// Directory looks up users by their internal id, public uuid or email
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a user directory backed by db
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// ByID loads a user by internal id
func (d *Directory) ByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupError(err)
	}
	return &user, nil
}

// ByUUID loads a user by public identifier
func (d *Directory) ByUUID(ctx context.Context, userUUID string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Where("uuid = ?", userUUID).First(&user).Error; err != nil {
		return nil, lookupError(err)
	}
	return &user, nil
}

// ByEmail loads a user by email address
func (d *Directory) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, lookupError(err)
	}
	return &user, nil
}

// ListExcept returns every user other than userID, ordered by name
func (d *Directory) ListExcept(ctx context.Context, userID uint) ([]models.User, error) {
	var list []models.User
	err := d.db.WithContext(ctx).
		Where("id <> ?", userID).
		Order("name ASC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch users")
	}
	return list, nil
}

// FindByUUIDs resolves a batch of public identifiers with tx, which may be a
// transaction. Unknown identifiers are simply absent from the result.
func FindByUUIDs(tx *gorm.DB, uuids []string) (map[string]models.User, error) {
	found := make(map[string]models.User, len(uuids))
	if len(uuids) == 0 {
		return found, nil
	}

	var list []models.User
	if err := tx.Where("uuid IN ?", uuids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, u := range list {
		found[u.UUID] = u
	}
	return found, nil
}

func lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("User not found")
	}
	return apperr.Internal(err, "Failed to fetch user")
}
