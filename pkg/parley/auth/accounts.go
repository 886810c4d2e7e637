package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/logging"
	"github.com/parleychat/parley/pkg/parley/models"
	"gorm.io/gorm"
)

// Session is what a successful register or login hands back to the client
type Session struct {
	User  models.UserSummary `json:"user"`
	Token string             `json:"token"`
}

// UserLookup finds existing users. Missing users come back as not-found
// errors.
type UserLookup interface {
	ByID(ctx context.Context, id uint) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
}

// Accounts creates users and checks their credentials
type Accounts struct {
	db    *gorm.DB
	users UserLookup
}

// NewAccounts creates an account service. New users are written to db and
// existing ones are read through users.
func NewAccounts(db *gorm.DB, users UserLookup) *Accounts {
	return &Accounts{db: db, users: users}
}

// Register stores a new user and signs a token for it. A taken email is a
// conflict.
func (a *Accounts) Register(ctx context.Context, name, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	_, err := a.users.ByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperr.Conflict("Email already registered")
	case !apperr.Is(err, apperr.KindNotFound):
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to process password")
	}

	user := models.User{Name: strings.TrimSpace(name), Email: email, PasswordHash: hash}
	if err := a.db.WithContext(ctx).Create(&user).Error; err != nil {
		// Lost a race with a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("Email already registered")
		}
		return nil, apperr.Internal(err, "Failed to create user")
	}

	logging.Event("user_registered", map[string]interface{}{"user_uuid": user.UUID})
	return issue(&user)
}

// Login checks the password of the user registered under email. An unknown
// email is not-found, a wrong password is unauthenticated.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := a.users.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, apperr.Unauthenticated("Invalid email or password")
	}
	return issue(user)
}

// Profile returns the summary of an existing user
func (a *Accounts) Profile(ctx context.Context, userID uint) (models.UserSummary, error) {
	user, err := a.users.ByID(ctx, userID)
	if err != nil {
		return models.UserSummary{}, err
	}
	return user.Summary(), nil
}

func issue(user *models.User) (*Session, error) {
	token, err := GenerateToken(user.ID, user.UUID, user.Email)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate token")
	}
	return &Session{User: user.Summary(), Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
