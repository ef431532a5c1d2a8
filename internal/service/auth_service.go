package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/observability/metrics"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/auth"
)

// AdminUsername is the account created by the startup bootstrap
const AdminUsername = "admin"

const msgInvalidCredentials = "Invalid username or password"

// AuthService handles registration, login and password changes
type AuthService struct {
	users  domain.UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users domain.UserRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AuthResult is returned by register, login and refresh
type AuthResult struct {
	User  domain.Identity `json:"user"`
	Token string          `json:"token"`
}

// Register creates a new user account and signs a token for it
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	result, err := s.register(ctx, username, password)
	metrics.ObserveAuthAttempt("register", metrics.Result(err))
	return result, err
}

func (s *AuthService) register(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.Validation("Username and password are required")
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, domain.Conflict("Username already exists")
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, internalError(s.logger, "failed to look up username", err)
	}

	user, err := s.createUser(ctx, username, password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return s.issue(user)
}

func (s *AuthService) createUser(ctx context.Context, username, password string) (*domain.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError(s.logger, "failed to hash password", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.Conflict("Username already exists")
		}
		return nil, internalError(s.logger, "failed to create user", err)
	}
	return user, nil
}

// Login verifies credentials and returns a fresh token
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	result, err := s.login(ctx, username, password)
	metrics.ObserveAuthAttempt("login", metrics.Result(err))
	return result, err
}

func (s *AuthService) login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.Validation("Username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			s.logger.Info("login attempt with unknown username")
			return nil, domain.Unauthorized(msgInvalidCredentials)
		}
		return nil, internalError(s.logger, "failed to look up user", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.logger.Info("login failed with wrong password", slog.String("user_id", user.ID))
		return nil, domain.Unauthorized(msgInvalidCredentials)
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return s.issue(user)
}

// rehash upgrades a hash made with an older cost. Failure leaves the old hash in place.
func (s *AuthService) rehash(ctx context.Context, user *domain.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	now := s.now()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		s.logger.Warn("failed to store rehashed password", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = now
}

// GetProfile returns the public view of a user
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.Identity, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	identity := user.Identity()
	return &identity, nil
}

// RefreshToken signs a new token for an authenticated user
func (s *AuthService) RefreshToken(ctx context.Context, userID string) (*AuthResult, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// ChangePassword changes a user's password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return domain.Validation("Current password and new password are required")
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return domain.Unauthorized("Current password is incorrect")
	}

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return domain.Validation("New password must be different from current password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError(s.logger, "failed to hash new password", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.NotFound("User not found")
		}
		return internalError(s.logger, "failed to update user password", err)
	}

	s.logger.Info("user changed password", slog.String("user_id", userID))
	return nil
}

// EnsureAdmin creates the admin account with password unless it already exists
func (s *AuthService) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	if err := validatePassword(password); err != nil {
		return false, err
	}

	if _, err := s.users.GetByUsername(ctx, AdminUsername); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		return false, internalError(s.logger, "failed to look up admin user", err)
	}

	user, err := s.createUser(ctx, AdminUsername, password)
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("admin user bootstrapped", slog.String("user_id", user.ID))
	return true, nil
}

func (s *AuthService) findUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NotFound("User not found")
		}
		return nil, internalError(s.logger, "failed to load user", err)
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, internalError(s.logger, "failed to sign token", err)
	}
	return &AuthResult{User: user.Identity(), Token: token}, nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < domain.MinUsernameLength {
		return domain.Validation("Username must be at least 3 characters")
	}
	if n > domain.MaxUsernameLength {
		return domain.Validation("Username must be at most 50 characters")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < domain.MinPasswordLength {
		return domain.Validation("Password must be at least 6 characters")
	}
	if len(password) > domain.MaxPasswordBytes {
		return domain.Validation("Password must be at most 72 bytes")
	}
	return nil
}
