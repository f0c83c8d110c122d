package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/parleychat/parley/internal/store"
)

var (
	// ErrUsernameTaken is returned by Register when the username exists.
	ErrUsernameTaken = errors.New("username is taken")
	// ErrUnknownUser is returned by Authenticate for missing accounts.
	ErrUnknownUser = errors.New("username does not exist")
	// ErrWrongPassword is returned by Authenticate on a credential mismatch.
	ErrWrongPassword = errors.New("passwords did not match")
)

// Credentials is the result of a successful registration or authentication.
type Credentials struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Service registers and authenticates users and issues their tokens.
type Service struct {
	users  store.UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewService wires the service to its user store and crypto collaborators.
func NewService(users store.UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Register creates the account and returns a signed token for it. Username
// uniqueness rests on the store's conditional insert, so two concurrent
// registrations for the same name cannot both succeed.
func (s *Service) Register(ctx context.Context, username, password string) (*Credentials, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	if err := s.users.CreateUser(ctx, username, hash); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	token, err := s.tokens.Sign(username)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Credentials{Username: username, Token: token}, nil
}

// Authenticate verifies the password against the stored digest and issues a
// fresh token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Credentials, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrWrongPassword
	}

	token, err := s.tokens.Sign(username)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Credentials{Username: username, Token: token}, nil
}
