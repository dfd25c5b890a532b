package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateEmail     = errors.New("email already used")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("email and password are required")
)

type UserStorage interface {
	SaveUser(ctx context.Context, user models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type Service struct {
	storage UserStorage
	tokens  TokenIssuer
	logger  *slog.Logger
	cost    int
}

func New(storage UserStorage, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		tokens:  tokens,
		logger:  logger,
		cost:    bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// CreateUser registers a user with an empty cart and returns the new id.
func (s *Service) CreateUser(ctx context.Context, name, email, password string) (string, error) {
	const op = "services.auth.CreateUser"

	if email == "" || password == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	s.logger.Info("Register new user", slog.String("email", email))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(passHash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			return "", fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
		}
		s.logger.Error("Failed to save user", "error", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return user.ID, nil
}

// Authenticate returns the id of the user owning email if password matches.
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	const op = "services.auth.Authenticate"

	user, err := s.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return user.ID, nil
}

// Signup creates the user and returns a session token for it.
func (s *Service) Signup(ctx context.Context, name, email, password string) (string, error) {
	id, err := s.CreateUser(ctx, name, email, password)
	if err != nil {
		return "", err
	}

	return s.issue(id)
}

// Login checks the credentials and returns a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	id, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}

	return s.issue(id)
}

func (s *Service) issue(userID string) (string, error) {
	const op = "services.auth.issue"

	token, err := s.tokens.Issue(userID)
	if err != nil {
		s.logger.Error("Failed to issue token", "error", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}
