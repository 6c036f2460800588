package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/api/responses"
	"github.com/sewasetu/sewasetu-backend/api/validators"
	"github.com/sewasetu/sewasetu-backend/internal/auth"
	"github.com/sewasetu/sewasetu-backend/internal/orders"
	"github.com/sewasetu/sewasetu-backend/internal/partners"
	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/pagination"
)

type createOrderRequest struct {
	ServiceName   string          `json:"service_name" validate:"required"`
	CustomerName  string          `json:"customer_name" validate:"required"`
	Area          string          `json:"area"`
	AdvanceAmount decimal.Decimal `json:"advance_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount" validate:"required"`
}

type updatePartnerStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminRegisterPartner creates a partner account with an initial password.
func AdminRegisterPartner(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.RegisterPartnerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.RegisterPartner(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, summary)
	}
}

// AdminCreateOrder publishes a new customer booking into the open pool.
func AdminCreateOrder(repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.AdvanceAmount.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "advance amount cannot be negative"))
			return
		}
		if body.TotalAmount.LessThan(body.AdvanceAmount) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "total amount cannot be below the advance"))
			return
		}

		var area *string
		if body.Area != "" {
			area = &body.Area
		}
		order := &models.Order{
			ServiceName:   body.ServiceName,
			CustomerName:  body.CustomerName,
			Area:          area,
			Status:        enums.OrderStatusPending,
			AdvanceAmount: body.AdvanceAmount,
			TotalAmount:   body.TotalAmount,
		}
		created, err := repo.Create(r.Context(), order)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// AdminPartnerTransactions lists any partner's ledger for back-office review.
func AdminPartnerTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, err := uuid.Parse(chi.URLParam(r, "partnerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid partner id"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.History(r.Context(), partnerID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminUpdatePartnerStatus activates, deactivates, or suspends a partner.
func AdminUpdatePartnerStatus(repo partners.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, err := uuid.Parse(chi.URLParam(r, "partnerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid partner id"))
			return
		}

		var body updatePartnerStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParsePartnerStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown partner status"))
			return
		}

		if _, err := repo.FindByID(r.Context(), partnerID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "partner not found"))
			return
		}

		if err := repo.UpdateStatus(r.Context(), partnerID, status); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update partner status"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(status)})
	}
}
