package auth

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// PartnerLoginRequest carries the credentials from the partner app.
type PartnerLoginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminLoginRequest carries back-office credentials.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterPartnerRequest creates a partner account. Admin only.
type RegisterPartnerRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Phone    string `json:"phone" validate:"required,min=8"`
	Password string `json:"password" validate:"required,min=8"`
}

// PartnerSummary is the partner view returned by auth endpoints.
type PartnerSummary struct {
	ID            uuid.UUID           `json:"id"`
	Name          string              `json:"name"`
	Phone         string              `json:"phone"`
	Status        enums.PartnerStatus `json:"status"`
	WalletBalance decimal.Decimal     `json:"wallet_balance"`
}

// AdminSummary is the admin view returned by auth endpoints.
type AdminSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// LoginResult contains the token pair plus the authenticated identity.
type LoginResult struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Partner      *PartnerSummary `json:"partner,omitempty"`
	Admin        *AdminSummary   `json:"admin,omitempty"`
}

func partnerSummary(partner *models.Partner) *PartnerSummary {
	if partner == nil {
		return nil
	}
	return &PartnerSummary{
		ID:            partner.ID,
		Name:          partner.Name,
		Phone:         partner.Phone,
		Status:        partner.Status,
		WalletBalance: partner.WalletBalance,
	}
}

func adminSummary(admin *models.AdminUser) *AdminSummary {
	if admin == nil {
		return nil
	}
	return &AdminSummary{
		ID:    admin.ID,
		Name:  admin.Name,
		Email: admin.Email,
	}
}
