package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sewasetu/sewasetu-backend/api/controllers"
	webhookcontrollers "github.com/sewasetu/sewasetu-backend/api/controllers/webhooks"
	"github.com/sewasetu/sewasetu-backend/api/middleware"
	"github.com/sewasetu/sewasetu-backend/internal/auth"
	"github.com/sewasetu/sewasetu-backend/internal/orderfeed"
	"github.com/sewasetu/sewasetu-backend/internal/orders"
	"github.com/sewasetu/sewasetu-backend/internal/partners"
	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	razorpaywebhook "github.com/sewasetu/sewasetu-backend/internal/webhooks/razorpay"
	"github.com/sewasetu/sewasetu-backend/pkg/auth/session"
	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/db"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/razorpay"
	"github.com/sewasetu/sewasetu-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *redis.Client
	SessionManager sessionManager
	AuthService    auth.Service
	WalletService  wallet.Service
	OrdersService  orders.Service
	OrdersRepo     orders.Repository
	PartnersRepo   partners.Repository
	OrderFeed      *orderfeed.Feed
	RazorpayClient *razorpay.Client
	WebhookService *razorpaywebhook.Service
	WebhookGuard   *razorpaywebhook.IdempotencyGuard
	MetricsHandler http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.RateLimit.LoginWindow,
		cfg.RateLimit.LoginIPLimit,
		cfg.RateLimit.LoginCredentialLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(p.WebhookService, p.WebhookGuard, p.RazorpayClient, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/partner/login", controllers.PartnerLogin(p.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/admin/login", controllers.AdminLogin(p.AuthService, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.SessionManager, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(p.SessionManager, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.SessionManager, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePartner(logg))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/balance", controllers.WalletBalance(p.WalletService, logg))
				r.Get("/transactions", controllers.WalletTransactions(p.WalletService, logg))
				r.Post("/topups", controllers.WalletTopupCreate(p.WalletService, logg))
				r.With(middleware.PartnerRateLimit(
					"reconcile",
					cfg.RateLimit.ReconcilePartnerLimit,
					cfg.RateLimit.ReconcileWindow,
					p.Redis,
					logg,
				)).Post("/topups/{gatewayOrderID}/reconcile", controllers.WalletTopupReconcile(p.WalletService, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/feed", controllers.OrderFeedList(p.OrderFeed, logg))
				r.Get("/assigned", controllers.OrdersAssigned(p.OrdersService, logg))
				r.Get("/{orderID}", controllers.OrderDetail(p.OrdersService, logg))
				r.Post("/{orderID}/accept", controllers.OrderAccept(p.OrdersService, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Post("/partners", controllers.AdminRegisterPartner(p.AuthService, logg))
			r.Get("/partners/{partnerID}/transactions", controllers.AdminPartnerTransactions(p.WalletService, logg))
			r.Patch("/partners/{partnerID}/status", controllers.AdminUpdatePartnerStatus(p.PartnersRepo, logg))
			r.Post("/orders", controllers.AdminCreateOrder(p.OrdersRepo, logg))
		})
	})

	return r
}
