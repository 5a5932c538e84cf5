package handler

import (
	"net/http"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/payment"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

type PaymentHandler struct {
	service *payment.Service
	logger  logger.Logger
}

func NewPaymentHandler(service *payment.Service, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: log}
}

// RequestPayment opens a payment for a checkout.
func (h *PaymentHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	var req payment.RequestPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.service.RequestPayment(r.Context(), &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListCheckoutPayments returns every payment attempt of a checkout, oldest first.
func (h *PaymentHandler) ListCheckoutPayments(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("checkout_ref")
	if ref == "" {
		respondError(w, r, h.logger, &domain.ValidationError{Field: "checkout_ref", Message: "is required"})
		return
	}

	payments, err := h.service.ListCheckoutPayments(r.Context(), ref)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"total":    len(payments),
	})
}

func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req payment.RefundPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.service.RefundPayment(r.Context(), id, &req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	p, err := h.service.CancelPayment(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
