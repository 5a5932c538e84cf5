package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/cache"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

// IdempotencyMiddleware replays the stored response of a POST that was already served under the
// same Idempotency-Key, so client retries never run a command twice.
type IdempotencyMiddleware struct {
	cache  cache.Store
	ttl    time.Duration
	logger logger.Logger

	// how long a duplicate waits for the in-flight original
	waitStep  time.Duration
	waitSteps int
}

func NewIdempotencyMiddleware(store cache.Store, ttl time.Duration, log logger.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		cache:     store,
		ttl:       ttl,
		logger:    log,
		waitStep:  100 * time.Millisecond,
		waitSteps: 50,
	}
}

// Require demands an Idempotency-Key on unsafe methods. Keys are scoped by actor and route so two
// callers cannot collide.
func (m *IdempotencyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut &&
			r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key header required")
			return
		}

		scope := "anonymous"
		if actor, ok := ActorFromContext(r.Context()); ok {
			scope = actor.ID
		}
		dataKey := fmt.Sprintf("idempotency:data:%s:%s:%s:%s", scope, r.Method, r.URL.Path, key)
		lockKey := fmt.Sprintf("idempotency:lock:%s:%s:%s:%s", scope, r.Method, r.URL.Path, key)

		if m.replayCached(w, r, dataKey) {
			return
		}

		ok, err := m.cache.SetNX(r.Context(), lockKey, []byte(RequestIDFromContext(r.Context())), m.ttl)
		if err != nil {
			m.logger.Error("Idempotency lock failed", map[string]interface{}{"key": key, "error": err})
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if !ok {
			// another request with this key is in flight; wait for its response
			if m.awaitCached(w, r, dataKey) || r.Context().Err() != nil {
				return
			}
			m.logger.Warn("Idempotency key still in flight", map[string]interface{}{"key": key})
			jsonError(w, http.StatusConflict, errors.ErrDuplicateRequest.Error())
			return
		}
		defer func() {
			if err := m.cache.Delete(r.Context(), lockKey); err != nil {
				m.logger.Warn("Failed to release idempotency lock", map[string]interface{}{"key": key, "error": err})
			}
		}()

		cw := newCaptureWriter(w, 1<<20)
		next.ServeHTTP(cw, r)

		if err := m.cacheResponse(r, dataKey, cw); err != nil {
			m.logger.Warn("Failed to store idempotent response", map[string]interface{}{"key": key, "error": err})
		}
	})
}

// awaitCached polls for the in-flight original's response. It gives up when the wait runs out or
// the client goes away.
func (m *IdempotencyMiddleware) awaitCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	ticker := time.NewTicker(m.waitStep)
	defer ticker.Stop()

	for i := 0; i < m.waitSteps; i++ {
		select {
		case <-r.Context().Done():
			return false
		case <-ticker.C:
		}
		if m.replayCached(w, r, dataKey) {
			return true
		}
	}
	return false
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	payload, err := m.cache.Get(r.Context(), dataKey)
	if err != nil {
		return false
	}

	var cr capturedResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

// cacheResponse stores everything but server errors, which a retry may fix.
func (m *IdempotencyMiddleware) cacheResponse(r *http.Request, dataKey string, cw *captureWriter) error {
	if cw.status == 0 || cw.status >= 500 || len(cw.buf) == 0 || cw.truncated {
		return nil
	}

	payload, err := json.Marshal(capturedResponse{
		Status:  cw.status,
		Body:    cw.buf,
		Headers: cw.headers,
	})
	if err != nil {
		return err
	}
	return m.cache.Set(r.Context(), dataKey, payload, m.ttl)
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	truncated bool
	status    int
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 && k != "X-Request-Id" {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if space := w.limit - len(w.buf); space >= len(p) {
		w.buf = append(w.buf, p...)
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}
