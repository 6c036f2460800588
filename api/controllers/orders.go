package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sewasetu/sewasetu-backend/api/middleware"
	"github.com/sewasetu/sewasetu-backend/api/responses"
	"github.com/sewasetu/sewasetu-backend/internal/orders"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
)

type orderFeed interface {
	Snapshot() ([]models.Order, time.Time)
}

type orderFeedResponse struct {
	Orders      []models.Order `json:"orders"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	return id, nil
}

// OrderFeedList serves the polled snapshot of open orders.
func OrderFeedList(feed orderFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order feed unavailable"))
			return
		}
		snapshot, refreshedAt := feed.Snapshot()
		responses.WriteSuccess(w, orderFeedResponse{Orders: snapshot, RefreshedAt: refreshedAt})
	}
}

// OrderAccept claims an open order for the calling partner and debits the
// advance from their wallet.
func OrderAccept(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID := middleware.PartnerIDFromContext(r.Context())

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AcceptOrder(r.Context(), orderID, partnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// OrderDetail returns one order. Partners may only see orders assigned to
// them or still open.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if principal.IsPartner() && order.PartnerID != nil && *order.PartnerID != principal.PartnerID() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrdersAssigned lists the orders the calling partner has claimed.
func OrdersAssigned(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID := middleware.PartnerIDFromContext(r.Context())

		list, err := svc.ListAssigned(r.Context(), partnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": list})
	}
}
