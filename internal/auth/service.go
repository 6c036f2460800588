// Package auth authenticates partners and admins and issues the token pair
// the API consumes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/sewasetu/sewasetu-backend/pkg/auth"
	"github.com/sewasetu/sewasetu-backend/pkg/auth/session"
	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/db"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controllers.
type Service interface {
	PartnerLogin(ctx context.Context, req PartnerLoginRequest) (*LoginResult, error)
	AdminLogin(ctx context.Context, req AdminLoginRequest) (*LoginResult, error)
	RegisterPartner(ctx context.Context, req RegisterPartnerRequest) (*PartnerSummary, error)
}

type partnerRepository interface {
	Create(ctx context.Context, partner *models.Partner) (*models.Partner, error)
	FindByPhone(ctx context.Context, phone string) (*models.Partner, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Partners       partnerRepository
	Admins         AdminRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
}

type service struct {
	partners    partnerRepository
	admins      AdminRepository
	session     sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Partners == nil {
		return nil, fmt.Errorf("partner repository is required")
	}
	if params.Admins == nil {
		return nil, fmt.Errorf("admin repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		partners:    params.Partners,
		admins:      params.Admins,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *service) PartnerLogin(ctx context.Context, req PartnerLoginRequest) (*LoginResult, error) {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	partner, err := s.partners.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup partner")
	}

	valid, err := security.VerifyPassword(req.Password, partner.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || partner.Status != enums.PartnerStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	accessToken, refreshToken, err := s.issueTokens(ctx, partner.ID, enums.ActorRolePartner)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Partner:      partnerSummary(partner),
	}, nil
}

func (s *service) AdminLogin(ctx context.Context, req AdminLoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup admin")
	}

	valid, err := security.VerifyPassword(req.Password, admin.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !admin.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := time.Now().UTC()
	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	admin.LastLoginAt = &now

	accessToken, refreshToken, err := s.issueTokens(ctx, admin.ID, enums.ActorRoleAdmin)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Admin:        adminSummary(admin),
	}, nil
}

func (s *service) RegisterPartner(ctx context.Context, req RegisterPartnerRequest) (*PartnerSummary, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and phone are required")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	partner, err := s.partners.Create(ctx, &models.Partner{
		Name:         name,
		Phone:        phone,
		PasswordHash: hash,
		Status:       enums.PartnerStatusActive,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a partner with this phone already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create partner")
	}

	return partnerSummary(partner), nil
}

func (s *service) issueTokens(ctx context.Context, actorID uuid.UUID, role enums.ActorRole) (string, string, error) {
	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		ActorID: actorID,
		Role:    role,
		JTI:     accessID,
	})
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, accessID)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return accessToken, refreshToken, nil
}
