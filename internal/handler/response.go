// Package handler exposes the payment and claim services over HTTP.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/validator"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Kind   errors.Kind       `json:"kind"`
	IDs    map[string]string `json:"ids,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err to a status by its kind. Internal errors are logged and their text hidden.
func respondError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	kind := errors.KindOf(err)
	status := statusFor(kind)

	body := ErrorResponse{Error: err.Error(), Kind: kind, IDs: errorIDs(err)}
	var fields validator.FieldErrors
	if errors.As(err, &fields) {
		body.Error = "Validation failed"
		body.Fields = fields
	}
	if status == http.StatusInternalServerError {
		log.Error("Request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err,
		})
		body.Error = "Internal server error"
	}
	respondJSON(w, status, body)
}

func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindInvalidTransition, errors.KindConflict:
		return http.StatusConflict
	case errors.KindMonetary:
		return http.StatusUnprocessableEntity
	case errors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorIDs pulls aggregate ids out of typed domain errors so clients can correlate them.
func errorIDs(err error) map[string]string {
	var (
		paymentStatus *domain.PaymentStatusError
		refundAmount  *domain.RefundAmountError
		claimStatus   *domain.ClaimStatusError
		claimType     *domain.ClaimTypeError
	)
	switch {
	case errors.As(err, &paymentStatus):
		return map[string]string{"payment_id": paymentStatus.PaymentID.String()}
	case errors.As(err, &refundAmount):
		return map[string]string{"payment_id": refundAmount.PaymentID.String()}
	case errors.As(err, &claimStatus):
		return map[string]string{"claim_id": claimStatus.ClaimID.String()}
	case errors.As(err, &claimType):
		return map[string]string{"claim_id": claimType.ClaimID.String()}
	}
	return nil
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && err != io.EOF {
		return &domain.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}
