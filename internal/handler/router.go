package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/metrics"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/middleware"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

type RouterDeps struct {
	Payments    *PaymentHandler
	Claims      *ClaimHandler
	Webhooks    *WebhookHandler
	System      *SystemHandler
	Auth        *middleware.AuthMiddleware
	Idempotency *middleware.IdempotencyMiddleware
	// RateLimit is optional.
	RateLimit *middleware.RateLimiter
	Logger    logger.Logger
}

// NewRouter wires every route. CORS is applied by the caller around the router so that
// preflight requests reach it before method matching.
func NewRouter(d RouterDeps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(d.Logger).Log)
	r.Use(middleware.Recovery(d.Logger))

	r.HandleFunc("/health", d.System.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", d.System.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	hooks := r.PathPrefix("/webhooks").Subrouter()
	hooks.HandleFunc("/pg", d.Webhooks.Gateway).Methods(http.MethodPost)
	hooks.HandleFunc("/carrier", d.Webhooks.Carrier).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(d.Auth.Authenticate)
	if d.RateLimit != nil {
		api.Use(d.RateLimit.Limit)
	}
	api.Use(d.Idempotency.Require)

	api.HandleFunc("/payments", d.Payments.RequestPayment).Methods(http.MethodPost)
	api.HandleFunc("/payments", d.Payments.ListCheckoutPayments).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id}", d.Payments.GetPayment).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id}/refunds", d.Payments.RefundPayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}/cancel", d.Payments.CancelPayment).Methods(http.MethodPost)

	api.HandleFunc("/claims", d.Claims.RequestClaim).Methods(http.MethodPost)
	api.HandleFunc("/claims/{id}", d.Claims.GetClaim).Methods(http.MethodGet)
	api.HandleFunc("/claims/{id}/withdraw", d.Claims.WithdrawClaim).Methods(http.MethodPost)
	api.HandleFunc("/orders/{orderRef}/claims", d.Claims.ListOrderClaims).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(middleware.RoleAdmin, middleware.RoleSeller))
	admin.HandleFunc("/claims/{id}/approve", d.Claims.ApproveClaim).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/reject", d.Claims.RejectClaim).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/pickup", d.Claims.SchedulePickup).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/return-shipping", d.Claims.RegisterReturnShipping).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/inspection", d.Claims.ConfirmInspection).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/exchange-shipping", d.Claims.RegisterExchangeShipping).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/exchange-delivered", d.Claims.ConfirmExchangeDelivered).Methods(http.MethodPost)
	admin.HandleFunc("/claims/{id}/complete", d.Claims.CompleteClaim).Methods(http.MethodPost)

	return r
}
