package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/claim"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/payment"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

// WebhookHandler receives PG and carrier callbacks. Both senders retry until they see a 2xx, so
// redeliveries of an already applied event are acknowledged with 200.
type WebhookHandler struct {
	payments *payment.Service
	claims   *claim.Service
	secret   []byte
	logger   logger.Logger
}

func NewWebhookHandler(payments *payment.Service, claims *claim.Service, secret string, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, claims: claims, secret: []byte(secret), logger: log}
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if len(h.secret) == 0 {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), h.secret) == 1
}

func (h *WebhookHandler) Gateway(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook secret"})
		return
	}

	var cb payment.GatewayCallback
	if err := decodeJSON(w, r, &cb); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.payments.HandleGatewayCallback(r.Context(), &cb)
	if errors.Is(err, errors.ErrDuplicateEvent) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "applied", "payment": p})
}

func (h *WebhookHandler) Carrier(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook secret"})
		return
	}

	var ev claim.CarrierEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	c, err := h.claims.HandleCarrierEvent(r.Context(), &ev)
	if errors.Is(err, errors.ErrDuplicateEvent) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "applied", "claim": c})
}
