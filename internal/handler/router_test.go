package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/claim"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/dedup"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/events"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/middleware"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/payment"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/policy"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/repository/bolt"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/saga"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

const (
	testSecret    = "handler-test-secret"
	webhookSecret = "hook-secret"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	admin  string
	buyer  string
}

func newTestAPI(t *testing.T, checks ...DependencyCheck) *testAPI {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logger.NewNop()
	bus := events.NewDispatcher(log)
	tracker := dedup.NewTracker(store, time.Hour)
	policies := policy.Default()

	payments := payment.NewService(store.Payments(), bus, tracker, log)
	claims := claim.NewService(store.Claims(policies.ActiveClaim.Key), bus, tracker, policies, log)
	saga.NewRefundSaga(payments, claims, log).Register(bus)

	router := NewRouter(RouterDeps{
		Payments:    NewPaymentHandler(payments, log),
		Claims:      NewClaimHandler(claims, log),
		Webhooks:    NewWebhookHandler(payments, claims, webhookSecret, log),
		System:      NewSystemHandler(checks, log),
		Auth:        middleware.NewAuthMiddleware(testSecret, ""),
		Idempotency: middleware.NewIdempotencyMiddleware(store, time.Hour, log),
		RateLimit:   middleware.NewRateLimiter(store, 1000, time.Minute, log),
		Logger:      log,
	})

	admin, err := middleware.IssueToken(testSecret, "", "admin-1", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	buyer, err := middleware.IssueToken(testSecret, "", "buyer-1", middleware.RoleCustomer, time.Hour)
	require.NoError(t, err)

	return &testAPI{t: t, router: router, admin: admin, buyer: buyer}
}

func (a *testAPI) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
		req.Header.Set("X-Webhook-Secret", webhookSecret)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// approvedPayment requests a payment and approves it through the PG webhook.
func (a *testAPI) approvedPayment(amount string) string {
	a.t.Helper()
	w, p := a.do(http.MethodPost, "/api/v1/payments", a.buyer, map[string]string{
		"checkout_ref": "CHK-1",
		"provider":     "TOSS",
		"method":       "CARD",
		"amount":       amount,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	id := p["id"].(string)

	w, _ = a.do(http.MethodPost, "/webhooks/pg", "", map[string]string{
		"event_id":       "evt-approve-" + id,
		"type":           "APPROVED",
		"payment_id":     id,
		"transaction_id": "pg_tx_1",
		"amount":         amount,
	})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func TestAPI_PaymentLifecycle(t *testing.T) {
	api := newTestAPI(t)
	id := api.approvedPayment("50000")

	w, body := api.do(http.MethodGet, "/api/v1/payments/"+id, api.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "APPROVED", body["status"])
	assert.Equal(t, "50000", body["approved_amount"])

	w, body = api.do(http.MethodPost, "/api/v1/payments/"+id+"/refunds", api.buyer, map[string]string{"amount": "20000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PARTIAL_REFUNDED", body["status"])
	assert.Equal(t, "20000", body["refunded_amount"])

	w, body = api.do(http.MethodPost, "/api/v1/payments/"+id+"/refunds", api.buyer, map[string]string{"amount": "40000"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "monetary_invariant", body["kind"])
	assert.Equal(t, map[string]interface{}{"payment_id": id}, body["ids"])

	w, body = api.do(http.MethodPost, "/api/v1/payments/"+id+"/cancel", api.buyer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", body["kind"])

	w, body = api.do(http.MethodGet, "/api/v1/payments?checkout_ref=CHK-1", api.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(http.MethodPost, "/api/v1/payments", api.buyer, map[string]string{"checkout_ref": "C1", "provider": "TOSS", "method": "CARD", "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
	assert.Contains(t, body["fields"], "amount")

	w, body = api.do(http.MethodPost, "/api/v1/payments", api.buyer, map[string]string{"checkout_ref": "C1", "provider": "TOSS", "method": "CARD", "amount": "10.004"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])

	w, body = api.do(http.MethodGet, "/api/v1/payments/"+uuid.NewString(), api.buyer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])

	w, _ = api.do(http.MethodGet, "/api/v1/claims/not-a-uuid", api.buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodGet, "/api/v1/payments?checkout_ref=", api.buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_AuthAndRoles(t *testing.T) {
	api := newTestAPI(t)

	w, _ := api.do(http.MethodGet, "/api/v1/payments/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = api.do(http.MethodPost, "/api/v1/admin/claims/"+uuid.NewString()+"/approve", api.buyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(http.MethodPost, "/api/v1/admin/claims/"+uuid.NewString()+"/approve", api.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ReturnClaimRefundsThroughWebhooks(t *testing.T) {
	api := newTestAPI(t)
	paymentID := api.approvedPayment("50000")

	w, c := api.do(http.MethodPost, "/api/v1/claims", api.buyer, map[string]string{
		"order_ref":        "ORD-1",
		"payment_id":       paymentID,
		"type":             "RETURN",
		"reason":           "DEFECTIVE",
		"requested_amount": "20000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	claimID := c["id"].(string)
	admin := "/api/v1/admin/claims/" + claimID

	w, body := api.do(http.MethodPost, "/api/v1/claims", api.buyer, map[string]string{
		"order_ref": "ORD-1", "payment_id": paymentID, "type": "RETURN", "reason": "DEFECTIVE", "requested_amount": "1000",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["kind"])

	w, _ = api.do(http.MethodPost, admin+"/approve", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = api.do(http.MethodPost, admin+"/approve", api.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, map[string]interface{}{"claim_id": claimID}, body["ids"])

	w, _ = api.do(http.MethodPost, admin+"/return-shipping", api.admin, map[string]string{"carrier_id": "CJ", "tracking_number": "T-100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	delivered := map[string]string{"event_id": "cj-1", "carrier_id": "CJ", "tracking_number": "T-100", "status": "DELIVERED"}
	w, body = api.do(http.MethodPost, "/webhooks/carrier", "", delivered)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "applied", body["status"])

	w, body = api.do(http.MethodPost, "/webhooks/carrier", "", delivered)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", body["status"])

	w, body = api.do(http.MethodPost, admin+"/inspection", api.admin, map[string]string{"outcome": "PASS"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, "PASS", body["inspection"])

	w, body = api.do(http.MethodGet, "/api/v1/claims/"+claimID, api.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "COMPLETED", body["status"])

	w, body = api.do(http.MethodGet, "/api/v1/payments/"+paymentID, api.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PARTIAL_REFUNDED", body["status"])

	w, body = api.do(http.MethodGet, "/api/v1/orders/ORD-1/claims", api.buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestAPI_WebhookRejectsWrongSecret(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/pg", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Webhook-Secret", "guess")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := api.do(http.MethodPost, "/webhooks/carrier", "", map[string]string{
		"event_id": "e1", "carrier_id": "CJ", "tracking_number": "T-404", "status": "TELEPORTED",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestAPI_SystemEndpoints(t *testing.T) {
	api := newTestAPI(t,
		DependencyCheck{Name: "bolt", Ping: func(ctx context.Context) error { return nil }},
		DependencyCheck{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
	)

	w, body := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = api.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	services := body["services"].([]interface{})
	require.Len(t, services, 2)
	assert.Equal(t, "operational", services[0].(map[string]interface{})["status"])
	assert.Equal(t, "outage", services[1].(map[string]interface{})["status"])

	w, _ = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
