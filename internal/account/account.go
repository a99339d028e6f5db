// Package account manages reader accounts.
package account

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
)

// ErrInvalidCredentials is returned when a username/password pair does not match.
var ErrInvalidCredentials = errors.New("account: invalid credentials")

// Store is the persistence the service needs.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service registers and authenticates users.
type Service struct {
	store Store
	cost  int
}

// NewService creates a Service. cost <= 0 uses bcrypt.DefaultCost.
func NewService(store Store, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: cost}
}

type registration struct {
	Username string
	Password string
}

func (r registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

// Register creates a user with a bcrypt hash of password.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := (registration{Username: username, Password: password}).Validate(); err != nil {
		return nil, fmt.Errorf("account: register: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}
	u, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		return nil, fmt.Errorf("account: register: %w", err)
	}
	return u, nil
}

// Authenticate returns the user when password matches the stored hash.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account: authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
