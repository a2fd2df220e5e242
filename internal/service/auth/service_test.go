package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
	"github.com/splax/taskboard/internal/repository/memory"
	"github.com/splax/taskboard/pkg/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.APIConfig {
	return config.APIConfig{JWTSecret: "test-secret", TokenIssuer: "taskboard-test", TokenTTL: time.Hour}
}

func newService(t *testing.T, users repository.UserRepository, cfg config.APIConfig) Service {
	t.Helper()
	svc, err := New(users, newLogger(), cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRegisterThenValidateReturnsAccountID(t *testing.T) {
	store := memory.New()
	svc := newService(t, store, testConfig())

	token, err := svc.Register(context.Background(), "a@x.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token.Token == "" || time.Until(token.ExpiresAt) <= 0 {
		t.Fatalf("unexpected token: %+v", token)
	}
	accountID, err := svc.Validate(token.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	user, err := store.GetUserByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	if accountID != user.ID {
		t.Fatalf("expected account %q, got %q", user.ID, accountID)
	}
	if bytes.Contains(user.PasswordHash, []byte("password1")) {
		t.Fatalf("password stored in plaintext")
	}
}

func TestRegisterRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	svc := newService(t, memory.New(), testConfig())
	if _, err := svc.Register(context.Background(), "a@x.com", "password1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), "  A@X.com ", "password2")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newService(t, memory.New(), testConfig())
	cases := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{name: "short password", email: "a@x.com", password: "short", field: "password"},
		{name: "seven chars", email: "a@x.com", password: "1234567", field: "password"},
		{name: "four multibyte chars", email: "a@x.com", password: "éééé", field: "password"},
		{name: "seventy three bytes", email: "a@x.com", password: strings.Repeat("é", 36) + "x", field: "password"},
		{name: "missing email", email: " ", password: "password1", field: "email"},
		{name: "malformed email", email: "not-an-email", password: "password1", field: "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.email, tc.password)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
	if _, err := svc.Register(context.Background(), "b@x.com", "12345678"); err != nil {
		t.Fatalf("eight character password should pass: %v", err)
	}
	if _, err := svc.Register(context.Background(), "c@x.com", "éééééééé"); err != nil {
		t.Fatalf("eight multibyte characters should pass: %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc := newService(t, memory.New(), testConfig())
	if _, err := svc.Register(context.Background(), "a@x.com", "password1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPassword := svc.Login(context.Background(), "a@x.com", "password2")
	_, unknownEmail := svc.Login(context.Background(), "nobody@x.com", "password1")

	if !errors.Is(wrongPassword, domain.ErrUnauthorized) || !errors.Is(unknownEmail, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized errors, got %v / %v", wrongPassword, unknownEmail)
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("login errors differ: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLoginIssuesTokenForAccount(t *testing.T) {
	svc := newService(t, memory.New(), testConfig())
	registered, err := svc.Register(context.Background(), "a@x.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	loggedIn, err := svc.Login(context.Background(), " A@x.COM", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	first, _ := svc.Validate(registered.Token)
	second, err := svc.Validate(loggedIn.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if first != second {
		t.Fatalf("expected same account, got %q and %q", first, second)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	cfg := testConfig()
	svc := newService(t, memory.New(), cfg)

	expiredCfg := cfg
	expiredCfg.TokenTTL = -time.Minute
	expiredSvc := newService(t, memory.New(), expiredCfg)
	expired, err := expiredSvc.Register(context.Background(), "a@x.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	otherCfg := cfg
	otherCfg.JWTSecret = "other-secret"
	otherSvc := newService(t, memory.New(), otherCfg)
	forged, err := otherSvc.Register(context.Background(), "a@x.com", "password1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for name, token := range map[string]string{
		"empty":     "",
		"malformed": "abc.def.ghi",
		"expired":   expired.Token,
		"signature": forged.Token,
	} {
		if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

type failingUsers struct{}

func (failingUsers) CreateUser(context.Context, *domain.User) error {
	return errors.New("connection refused")
}

func (failingUsers) GetUserByEmail(context.Context, string) (*domain.User, error) {
	return nil, errors.New("connection refused")
}

func TestStorageFailuresAreNotAuthErrors(t *testing.T) {
	svc := newService(t, failingUsers{}, testConfig())
	if _, err := svc.Register(context.Background(), "a@x.com", "password1"); err == nil || errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "a@x.com", "password1"); err == nil || errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
