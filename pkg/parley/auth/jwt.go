package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	defaultSecret   = "parley-dev-secret-change-in-production"
	defaultTokenTTL = 24 * time.Hour
)

var (
	settingsMu sync.RWMutex
	jwtSecret  = []byte(defaultSecret)
	tokenTTL   = defaultTokenTTL
)

// Claims represents the JWT claims
type Claims struct {
	UserID uint   `json:"user_id"`
	UUID   string `json:"uuid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Configure sets the signing secret and token lifetime. Empty or zero
// values keep the development defaults.
func Configure(secret string, ttl time.Duration) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func getJWTSecret() []byte {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return jwtSecret
}

func getTokenDuration() time.Duration {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return tokenTTL
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(userID uint, userUUID, email string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		UUID:   userUUID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userUUID,
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenDuration())),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "parley",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getJWTSecret())
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return getJWTSecret(), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
