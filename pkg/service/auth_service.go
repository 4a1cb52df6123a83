package service

import (
	"context"
	"errors"
	"strings"

	"github.com/example/bytespark/pkg/apperr"
	"github.com/example/bytespark/pkg/auth"
	"github.com/example/bytespark/pkg/config"
	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const msgInvalidCredentials = "Invalid credentials"

type SignupInput struct {
	Name     string
	Age      int
	Number   string
	Password string
}

type LoginResult struct {
	Token string
	Role  auth.Role
	// User is set for user logins only.
	User *models.User
}

// AuthService registers users and exchanges credentials for tokens. The
// admin is not a user record: it logs in with the configured reserved
// number and password hash.
type AuthService struct {
	users  UserStore
	tokens *auth.TokenService
	admin  config.AuthConfig
	logger *zap.Logger
	newID  func() string
}

func NewAuthService(users UserStore, tokens *auth.TokenService, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		admin:  cfg,
		logger: logger,
		newID:  uuid.NewString,
	}
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Number = strings.TrimSpace(in.Number)

	switch {
	case in.Name == "":
		return nil, apperr.Validation("name is required")
	case in.Number == "":
		return nil, apperr.Validation("number is required")
	case in.Password == "":
		return nil, apperr.Validation("password is required")
	case in.Age < 0:
		return nil, apperr.Validation("age must not be negative")
	}

	if s.admin.AdminNumber != "" && in.Number == s.admin.AdminNumber {
		return nil, apperr.Validation("This number is reserved")
	}

	_, err := s.users.FindByNumber(ctx, in.Number)
	if err == nil {
		return nil, apperr.Validation("User already exists")
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, s.internal("Signup failed", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, s.internal("Signup failed", err)
	}

	user := &models.User{
		ID:       s.newID(),
		Name:     in.Name,
		Age:      in.Age,
		Number:   in.Number,
		Password: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperr.Validation("User already exists")
		}
		return nil, s.internal("Signup failed", err)
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return user, nil
}

// Login checks the reserved admin number first, then the users table.
// Unknown numbers and wrong passwords get the same answer.
func (s *AuthService) Login(ctx context.Context, number, password string) (*LoginResult, error) {
	number = strings.TrimSpace(number)
	if number == "" || password == "" {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	if s.admin.AdminNumber != "" && number == s.admin.AdminNumber {
		return s.adminLogin(password)
	}

	user, err := s.users.FindByNumber(ctx, number)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.Validation(msgInvalidCredentials)
	}
	if err != nil {
		return nil, s.internal("Login failed", err)
	}
	if !auth.VerifyPassword(password, user.Password) {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(auth.UserPrincipal(user.ID))
	if err != nil {
		return nil, s.internal("Login failed", err)
	}
	return &LoginResult{Token: token, Role: auth.RoleUser, User: user}, nil
}

func (s *AuthService) adminLogin(password string) (*LoginResult, error) {
	if s.admin.AdminPasswordHash == "" {
		s.logger.Error("admin login attempted without a configured password hash")
		return nil, apperr.Internal("Admin auth misconfigured", nil)
	}
	if !auth.VerifyPassword(password, s.admin.AdminPasswordHash) {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	token, err := s.tokens.Issue(auth.AdminPrincipal())
	if err != nil {
		return nil, s.internal("Login failed", err)
	}
	return &LoginResult{Token: token, Role: auth.RoleAdmin}, nil
}

func (s *AuthService) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return apperr.Internal(msg, err)
}
