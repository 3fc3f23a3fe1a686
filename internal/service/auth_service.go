package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"orienta/internal/auth"
	"orienta/internal/config"
	"orienta/internal/models"
	"orienta/internal/repository"
	"orienta/pkg/validator"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminInactive      = errors.New("admin account is inactive")
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Admin     *models.Admin `json:"admin"`
}

// AuthService handles authentication of the authoring console
type AuthService struct {
	adminRepo *repository.AdminRepository
	authSvc   *auth.Service
}

// NewAuthService creates a new authentication service
func NewAuthService(adminRepo *repository.AdminRepository, authSvc *auth.Service) *AuthService {
	return &AuthService{
		adminRepo: adminRepo,
		authSvc:   authSvc,
	}
}

// Login checks the credentials and issues a token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, validator.SanitizeEmail(email))
	if err != nil {
		return nil, upstream("get admin", err)
	}
	if admin == nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.authSvc.VerifyPassword(admin.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !admin.IsActive {
		return nil, ErrAdminInactive
	}

	token, expiresAt, err := s.authSvc.GenerateToken(admin.ID, admin.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.adminRepo.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		slog.Warn("Failed to update last login", "admin_id", admin.ID, "error", err)
	} else {
		admin.LastLoginAt = &now
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Admin: admin}, nil
}

// GetAdmin retrieves an administrator by ID
func (s *AuthService) GetAdmin(ctx context.Context, id int64) (*models.Admin, error) {
	admin, err := s.adminRepo.GetByID(ctx, id)
	if err != nil {
		return nil, upstream("get admin", err)
	}
	if admin == nil {
		return nil, &NotFoundError{Resource: "admin", Key: id}
	}
	return admin, nil
}

// BootstrapAdmin creates the initial administrator when it does not exist yet.
// It is a no-op when no bootstrap email is configured.
func (s *AuthService) BootstrapAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	email := validator.SanitizeEmail(cfg.Email)
	if email == "" {
		return false, nil
	}
	if err := validator.ValidateEmail(email); err != nil {
		return false, fmt.Errorf("invalid ADMIN_EMAIL: %w", err)
	}
	if err := validator.ValidatePassword(cfg.Password); err != nil {
		return false, fmt.Errorf("invalid ADMIN_PASSWORD: %w", err)
	}

	existing, err := s.adminRepo.GetByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	hash, err := s.authSvc.HashPassword(cfg.Password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "Administrator"
	}

	admin := &models.Admin{Email: email, PasswordHash: hash, Name: name, IsActive: true}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("Bootstrapped administrator", "admin_id", admin.ID, "email", email)
	return true, nil
}
