package auth

import (
	"context"
	"errors"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"

	"github.com/folienwerk/backend-shop/internal/store"
)

// ErrInvalidCredentials covers unknown accounts and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service verifies back-office credentials and issues access tokens.
// Customer sign-in happens against the external identity provider; only
// admin accounts carry a local password hash.
type Service struct {
	Users  *store.UserRepo
	Tokens *Tokens
	Logger zerolog.Logger
}

// Login checks the password of an admin account and returns a signed
// access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}
	if user.PasswordHash == nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	match, err := argon2id.ComparePasswordAndHash(password, *user.PasswordHash)
	if err != nil {
		s.Logger.Error().Err(err).Str("email", email).Msg("compare password hash")
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !match {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.Tokens.Sign(user.ID, user.Roles)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// HashPassword produces an argon2id hash for seeding admin accounts.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}
