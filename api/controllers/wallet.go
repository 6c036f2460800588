package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/api/middleware"
	"github.com/sewasetu/sewasetu-backend/api/responses"
	"github.com/sewasetu/sewasetu-backend/api/validators"
	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/pagination"
)

type topupRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// WalletBalance returns the calling partner's current balance.
func WalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID := middleware.PartnerIDFromContext(r.Context())

		balance, err := svc.Balance(r.Context(), partnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"wallet_balance": balance})
	}
}

// WalletTransactions lists the calling partner's ledger, newest first.
func WalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID := middleware.PartnerIDFromContext(r.Context())

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

// WalletTopupCreate opens a gateway order the partner pays against.
func WalletTopupCreate(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID := middleware.PartnerIDFromContext(r.Context())

		var body topupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateTopupOrder(r.Context(), partnerID, body.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// WalletTopupReconcile polls the gateway for a top-up order and credits the
// wallet when the payment has been captured. Safe to call repeatedly.
func WalletTopupReconcile(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID := middleware.PartnerIDFromContext(r.Context())

		gatewayOrderID := chi.URLParam(r, "gatewayOrderID")
		if gatewayOrderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id required"))
			return
		}

		result, err := svc.ReconcileByOrder(r.Context(), partnerID, gatewayOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
