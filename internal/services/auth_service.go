package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geofeed/internal/models"
	"geofeed/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials covers every way presented credentials can fail:
// bad signature, expired token, unknown user, identity mismatch. Callers
// surface it once and do not retry until the client re-authenticates.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService validates realtime and HTTP credentials. It satisfies
// realtime.Authenticator.
type AuthService struct {
	users     repository.UserRepository
	jwtSecret []byte
	expiry    time.Duration
}

func NewAuthService(users repository.UserRepository, jwtSecret string, expiry time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		expiry:    expiry,
	}
}

// GenerateToken issues a signed bearer token for a user.
func (s *AuthService) GenerateToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(s.expiry).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses a bearer token and returns the user id it names.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidCredentials
	}
	return userID, nil
}

// Authenticate resolves presented credentials to a user. A token is the
// normal path; the bare (userId, username) fallback is accepted only for
// bot accounts, which run inside the trusted network.
func (s *AuthService) Authenticate(ctx context.Context, token, userID, username string) (*models.User, error) {
	if token != "" {
		id, err := s.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		user, err := s.users.FindByID(ctx, id)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return user, err
	}

	if userID == "" || username == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsBot || user.Username != username {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
