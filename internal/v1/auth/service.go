package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/peercall/broker/internal/v1/store"
)

// BcryptCost is the work factor for password hashes.
const BcryptCost = 10

var (
	// ErrInvalidCredentials is returned on login when email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError marks a malformed registration input. REST handlers map it
// to a 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a registration validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserRepository is the slice of the user store the credential service needs.
type UserRepository interface {
	Create(ctx context.Context, user *store.User) error
	GetByEmail(ctx context.Context, email string) (*store.User, error)
	GetByID(ctx context.Context, userID string) (*store.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Service implements the credential surface: register, login, user lookup.
type Service struct {
	users  UserRepository
	tokens *TokenService
}

// NewService creates the credential service.
func NewService(users UserRepository, tokens *TokenService) *Service {
	return &Service{users: users, tokens: tokens}
}

// RegisterInput carries the registration request body.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a user and returns it with a fresh bearer token.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*store.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if err := validateUsername(username); err != nil {
		return nil, "", err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, "", err
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, "", store.ErrEmailTaken
	}

	exists, err = s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, "", store.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	// The unique indexes close the check-then-insert race.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// LoginInput carries the login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and returns it with a fresh bearer token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*store.User, string, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// GetUser returns the user with the given ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*store.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ValidateToken exposes token validation for the socket handshake.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateToken(tokenString)
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return validationError("invalid email format")
	}
	return nil
}

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 20 {
		return validationError("username must be 3-20 characters")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return validationError("password must be at least 6 characters")
	}
	return nil
}
