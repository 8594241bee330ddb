package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"carwash-ops-server/config"
	"carwash-ops-server/database"
	"carwash-ops-server/models"
	"carwash-ops-server/utils"
)

// IdentityProvider creates and deletes authenticated principals
type IdentityProvider interface {
	CreatePrincipal(ctx context.Context, email, password string, meta models.RoleMetadata) (*models.Principal, error)
	DeletePrincipal(ctx context.Context, principalID string) error
}

// IdentityService keeps principals in the auth_principals table with
// bcrypt hashed passwords and issues JWT sessions for them.
type IdentityService struct {
	principals PrincipalRepository
	jwt        config.JWTConfig
}

func NewIdentityService(principals PrincipalRepository, jwt config.JWTConfig) *IdentityService {
	return &IdentityService{principals: principals, jwt: jwt}
}

type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal *models.Principal `json:"principal"`
}

func (s *IdentityService) CreatePrincipal(ctx context.Context, email, password string, meta models.RoleMetadata) (*models.Principal, error) {
	if meta.Role != models.RoleAdmin && meta.Role != models.RoleWorker {
		return nil, fmt.Errorf("unknown role %q", meta.Role)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	principal := &models.Principal{
		Email:        email,
		PasswordHash: hash,
		Role:         meta.Role,
		DisplayName:  meta.Name,
	}
	if err := s.principals.InsertPrincipal(ctx, principal); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrPrincipalExists, email)
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}

	log.Printf("✅ Principal %s created for %s (%s)", principal.ID, principal.Email, principal.Role)
	return principal, nil
}

func (s *IdentityService) DeletePrincipal(ctx context.Context, principalID string) error {
	if err := s.principals.DeletePrincipal(ctx, principalID); err != nil {
		return fmt.Errorf("delete principal %s: %w", principalID, err)
	}
	log.Printf("🗑️ Principal %s deleted", principalID)
	return nil
}

// Authenticate checks the credentials and issues a session token
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	principal, err := s.principals.FindPrincipalByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPasswordHash(password, principal.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := utils.GenerateToken(s.jwt, principal.ID, string(principal.Role))
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Principal: principal}, nil
}

// FindPrincipal is used by the auth middleware to confirm a token's principal still exists
func (s *IdentityService) FindPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	return s.principals.FindPrincipal(ctx, id)
}

// EnsurePrincipal creates the principal unless one already exists for the email
func (s *IdentityService) EnsurePrincipal(ctx context.Context, email, password string, meta models.RoleMetadata) (*models.Principal, error) {
	existing, err := s.principals.FindPrincipalByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	return s.CreatePrincipal(ctx, email, password, meta)
}
