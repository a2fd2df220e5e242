package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
	"github.com/splax/taskboard/pkg/config"
	"github.com/splax/taskboard/pkg/crypto"
	jwtpkg "github.com/splax/taskboard/pkg/jwt"
)

// MinPasswordLength is the shortest password Register accepts, in characters.
const MinPasswordLength = 8

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

var (
	// ErrInvalidCredentials is returned by Login for both unknown emails and wrong passwords.
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	// ErrInvalidToken is returned by Validate for any unusable token.
	ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", domain.ErrUnauthorized)
)

// Service handles authentication workflows.
type Service struct {
	users     repository.UserRepository
	logger    *slog.Logger
	cfg       config.APIConfig
	dummyHash []byte
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Login compares against this hash for unknown emails so both failure paths cost one bcrypt run.
	dummy, err := crypto.HashPassword(uuid.NewString())
	if err != nil {
		return Service{}, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return Service{users: users, logger: logger, cfg: cfg, dummyHash: dummy}, nil
}

// Token is a signed bearer credential.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Register creates an account and returns a token bound to it.
func (s Service) Register(ctx context.Context, email, password string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return Token{}, domain.NewValidationError("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return Token{}, domain.NewValidationError("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Token{}, domain.NewValidationError("email", "is already registered")
		}
		return Token{}, fmt.Errorf("create user: %w", err)
	}
	token, err := s.issue(user.ID)
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return token, nil
}

// Login verifies credentials and returns a token for the matched account.
func (s Service) Login(ctx context.Context, email, password string) (Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return Token{}, fmt.Errorf("lookup user: %w", err)
		}
		_ = crypto.ComparePassword(s.dummyHash, password)
		s.logger.Debug("login rejected", "reason", "unknown email")
		return Token{}, ErrInvalidCredentials
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Debug("login rejected", "reason", "password mismatch", "user_id", user.ID)
		return Token{}, ErrInvalidCredentials
	}
	token, err := s.issue(user.ID)
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return token, nil
}

// Validate verifies a bearer token and returns the account id it carries.
// It does not touch the store.
func (s Service) Validate(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.TokenIssuer, s.cfg.JWTSecret)
	if err != nil {
		s.logger.Debug("token rejected", "error", err)
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

func (s Service) issue(userID string) (Token, error) {
	signed, expires, err := jwtpkg.GenerateToken(userID, s.cfg.TokenIssuer, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Token: signed, ExpiresAt: expires.UTC()}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.NewValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.NewValidationError("email", "is not a valid address")
	}
	return email, nil
}
