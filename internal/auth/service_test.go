package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgAuth "github.com/sewasetu/sewasetu-backend/pkg/auth"
	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/security"
)

var testPasswordCfg = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

var testJWTCfg = config.JWTConfig{
	Secret:            "test-secret",
	Issuer:            "sewasetu-test",
	ExpirationMinutes: 15,
}

type stubPartnerRepo struct {
	partner   *models.Partner
	created   *models.Partner
	createErr error
}

func (s *stubPartnerRepo) Create(_ context.Context, partner *models.Partner) (*models.Partner, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	partner.ID = uuid.New()
	s.created = partner
	return partner, nil
}

func (s *stubPartnerRepo) FindByPhone(_ context.Context, phone string) (*models.Partner, error) {
	if s.partner == nil || s.partner.Phone != phone {
		return nil, gorm.ErrRecordNotFound
	}
	return s.partner, nil
}

type stubAdminRepo struct {
	admin         *models.AdminUser
	lastLoginSets int
}

func (s *stubAdminRepo) Create(_ context.Context, admin *models.AdminUser) (*models.AdminUser, error) {
	return admin, nil
}

func (s *stubAdminRepo) FindByEmail(_ context.Context, _ string) (*models.AdminUser, error) {
	if s.admin == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.admin, nil
}

func (s *stubAdminRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID, _ time.Time) error {
	s.lastLoginSets++
	return nil
}

type stubSession struct {
	generated []string
	err       error
}

func (s *stubSession) Generate(_ context.Context, accessID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.generated = append(s.generated, accessID)
	return "refresh-" + accessID, nil
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordCfg)
	require.NoError(t, err)
	return hash
}

func newAuthService(t *testing.T, partners *stubPartnerRepo, admins *stubAdminRepo, sess *stubSession) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Partners:       partners,
		Admins:         admins,
		SessionManager: sess,
		JWTConfig:      testJWTCfg,
		PasswordConfig: testPasswordCfg,
	})
	require.NoError(t, err)
	return svc
}

func TestPartnerLoginIssuesPartnerTokens(t *testing.T) {
	partner := &models.Partner{
		ID:           uuid.New(),
		Name:         "Ravi",
		Phone:        "9876500001",
		PasswordHash: hashFor(t, "correct-horse"),
		Status:       enums.PartnerStatusActive,
	}
	sess := &stubSession{}
	svc := newAuthService(t, &stubPartnerRepo{partner: partner}, &stubAdminRepo{}, sess)

	result, err := svc.PartnerLogin(context.Background(), PartnerLoginRequest{
		Phone:    "9876500001",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Partner)
	assert.Equal(t, partner.ID, result.Partner.ID)
	assert.NotEmpty(t, result.RefreshToken)
	require.Len(t, sess.generated, 1)

	claims, err := pkgAuth.ParseAccessToken(testJWTCfg, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, partner.ID, claims.ActorID)
	assert.Equal(t, enums.ActorRolePartner, claims.Role)
	assert.Equal(t, sess.generated[0], claims.ID, "jti must match the session key")
}

func TestPartnerLoginRejectsBadCredentials(t *testing.T) {
	partner := &models.Partner{
		ID:           uuid.New(),
		Phone:        "9876500001",
		PasswordHash: hashFor(t, "correct-horse"),
		Status:       enums.PartnerStatusActive,
	}
	svc := newAuthService(t, &stubPartnerRepo{partner: partner}, &stubAdminRepo{}, &stubSession{})

	_, err := svc.PartnerLogin(context.Background(), PartnerLoginRequest{Phone: "9876500001", Password: "wrong"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.PartnerLogin(context.Background(), PartnerLoginRequest{Phone: "0000000000", Password: "correct-horse"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized), "unknown phone must look like bad credentials")
}

func TestPartnerLoginRejectsSuspendedPartner(t *testing.T) {
	partner := &models.Partner{
		ID:           uuid.New(),
		Phone:        "9876500001",
		PasswordHash: hashFor(t, "correct-horse"),
		Status:       enums.PartnerStatusSuspended,
	}
	svc := newAuthService(t, &stubPartnerRepo{partner: partner}, &stubAdminRepo{}, &stubSession{})

	_, err := svc.PartnerLogin(context.Background(), PartnerLoginRequest{Phone: "9876500001", Password: "correct-horse"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestAdminLoginIssuesAdminTokens(t *testing.T) {
	admins := &stubAdminRepo{admin: &models.AdminUser{
		ID:           uuid.New(),
		Email:        "ops@sewasetu.in",
		Name:         "Ops",
		PasswordHash: hashFor(t, "admin-pass"),
		IsActive:     true,
	}}
	svc := newAuthService(t, &stubPartnerRepo{}, admins, &stubSession{})

	result, err := svc.AdminLogin(context.Background(), AdminLoginRequest{
		Email:    "Ops@SewaSetu.in",
		Password: "admin-pass",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Admin)
	assert.Equal(t, 1, admins.lastLoginSets)

	claims, err := pkgAuth.ParseAccessToken(testJWTCfg, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, enums.ActorRoleAdmin, claims.Role)
}

func TestAdminLoginRejectsInactiveAdmin(t *testing.T) {
	admins := &stubAdminRepo{admin: &models.AdminUser{
		ID:           uuid.New(),
		Email:        "ops@sewasetu.in",
		PasswordHash: hashFor(t, "admin-pass"),
		IsActive:     false,
	}}
	svc := newAuthService(t, &stubPartnerRepo{}, admins, &stubSession{})

	_, err := svc.AdminLogin(context.Background(), AdminLoginRequest{Email: "ops@sewasetu.in", Password: "admin-pass"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
	assert.Equal(t, 0, admins.lastLoginSets)
}

func TestRegisterPartnerHashesPassword(t *testing.T) {
	partners := &stubPartnerRepo{}
	svc := newAuthService(t, partners, &stubAdminRepo{}, &stubSession{})

	summary, err := svc.RegisterPartner(context.Background(), RegisterPartnerRequest{
		Name:     "Ravi",
		Phone:    "9876500001",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PartnerStatusActive, summary.Status)

	require.NotNil(t, partners.created)
	assert.NotEqual(t, "correct-horse", partners.created.PasswordHash)
	ok, err := security.VerifyPassword("correct-horse", partners.created.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterPartnerDuplicatePhone(t *testing.T) {
	partners := &stubPartnerRepo{createErr: errors.New(`duplicate key value violates unique constraint "partners_phone_key"`)}
	svc := newAuthService(t, partners, &stubAdminRepo{}, &stubSession{})

	_, err := svc.RegisterPartner(context.Background(), RegisterPartnerRequest{
		Name:     "Ravi",
		Phone:    "9876500001",
		Password: "correct-horse",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}
