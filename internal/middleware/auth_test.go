package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

func echoActor(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Actor", actor.ID+"/"+actor.Role)
		w.WriteHeader(http.StatusOK)
	})
}

func authorized(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthenticate_AcceptsIssuedToken(t *testing.T) {
	token, err := IssueToken(testSecret, "commerce", "user-1", RoleSeller, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	NewAuthMiddleware(testSecret, "commerce").Authenticate(echoActor(t)).ServeHTTP(w, authorized(token))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1/seller", w.Header().Get("X-Actor"))
}

func TestAuthenticate_DefaultsRoleToCustomer(t *testing.T) {
	token, err := IssueToken(testSecret, "", "user-2", "", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	NewAuthMiddleware(testSecret, "").Authenticate(echoActor(t)).ServeHTTP(w, authorized(token))

	assert.Equal(t, "user-2/customer", w.Header().Get("X-Actor"))
}

func TestAuthenticate_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "commerce", "user-1", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("another-secret", "commerce", "user-1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken(testSecret, "someone-else", "user-1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	noSubject, err := IssueToken(testSecret, "commerce", "", RoleAdmin, time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "commerce"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing header", authorized("")},
		{"expired", authorized(expired)},
		{"wrong key", authorized(wrongKey)},
		{"wrong issuer", authorized(wrongIssuer)},
		{"no subject", authorized(noSubject)},
		{"no expiry", authorized(noExpiry)},
		{"garbage", authorized("not-a-jwt")},
	}

	mw := NewAuthMiddleware(testSecret, "commerce")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			})).ServeHTTP(w, tt.req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	mw.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	guard := RequireRole(RoleAdmin, RoleSeller)(ok)

	tests := []struct {
		name  string
		actor *Actor
		want  int
	}{
		{"admin", &Actor{ID: "a", Role: RoleAdmin}, http.StatusNoContent},
		{"seller", &Actor{ID: "s", Role: RoleSeller}, http.StatusNoContent},
		{"customer", &Actor{ID: "c", Role: RoleCustomer}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tt.actor))
			}
			w := httptest.NewRecorder()
			guard.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://shop.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
