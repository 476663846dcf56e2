package auth

import (
	"context"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/store"
)

// Service handles signup and signin.
type Service struct {
	store  *store.Store
	secret string
}

// NewService creates an auth service.
func NewService(st *store.Store, secret string) *Service {
	return &Service{store: st, secret: secret}
}

// SignUp registers a new user and returns it with a session token.
func (s *Service) SignUp(ctx context.Context, email, nickname, password string) (*store.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apperrors.InvalidArgument("a valid email is required")
	}
	if len(password) < 8 {
		return nil, "", apperrors.InvalidArgument("password must be at least 8 characters")
	}

	existing, err := s.store.GetUser(ctx, &store.FindUser{Email: &email})
	if err != nil {
		return nil, "", apperrors.Internal("failed to look up user", err)
	}
	if existing != nil {
		return nil, "", apperrors.InvalidArgument("email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", apperrors.Internal("failed to hash password", err)
	}

	now := time.Now().Unix()
	user, err := s.store.CreateUser(ctx, &store.User{
		UID:          shortuuid.New(),
		Email:        email,
		Nickname:     nickname,
		PasswordHash: string(hash),
		CreatedTs:    now,
	})
	if err != nil {
		return nil, "", apperrors.Internal("failed to create user", err)
	}

	token, err := GenerateAccessToken(user.ID, s.secret, time.Now())
	if err != nil {
		return nil, "", apperrors.Internal("failed to issue token", err)
	}
	return user, token, nil
}

// SignIn verifies credentials and returns the user with a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*store.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUser(ctx, &store.FindUser{Email: &email})
	if err != nil {
		return nil, "", apperrors.Internal("failed to look up user", err)
	}
	if user == nil {
		return nil, "", apperrors.Unauthenticated("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperrors.Unauthenticated("invalid email or password")
	}

	token, err := GenerateAccessToken(user.ID, s.secret, time.Now())
	if err != nil {
		return nil, "", apperrors.Internal("failed to issue token", err)
	}
	return user, token, nil
}

// Authenticate resolves a bearer token to its user. Returns nil for a
// missing or invalid credential; callers decide whether anonymous access
// is acceptable.
func (s *Service) Authenticate(ctx context.Context, authHeader string) *store.User {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil
	}
	userID, err := ParseAccessToken(strings.TrimPrefix(authHeader, prefix), s.secret)
	if err != nil {
		return nil
	}
	user, err := s.store.GetUser(ctx, &store.FindUser{ID: &userID})
	if err != nil {
		return nil
	}
	return user
}
