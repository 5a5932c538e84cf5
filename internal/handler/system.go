package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

// DependencyCheck pings one backing service, e.g. db.PingContext.
type DependencyCheck struct {
	Name string
	// DegradedAfter marks a healthy but slow dependency as degraded.
	DegradedAfter time.Duration
	Ping          func(ctx context.Context) error
}

type SystemHandler struct {
	checks    []DependencyCheck
	logger    logger.Logger
	startTime time.Time
}

func NewSystemHandler(checks []DependencyCheck, log logger.Logger) *SystemHandler {
	return &SystemHandler{checks: checks, logger: log, startTime: time.Now()}
}

type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"uptime_s":  int64(time.Since(h.startTime).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready returns 503 when any dependency is unreachable.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	services := make([]ServiceStatus, 0, len(h.checks))
	ready := true
	for _, c := range h.checks {
		s := h.probe(ctx, c)
		if s.Status == "outage" {
			ready = false
		}
		services = append(services, s)
	}

	status, body := http.StatusOK, "ready"
	if !ready {
		status, body = http.StatusServiceUnavailable, "not ready"
	}
	respondJSON(w, status, map[string]interface{}{"status": body, "services": services})
}

func (h *SystemHandler) probe(ctx context.Context, c DependencyCheck) ServiceStatus {
	start := time.Now()
	err := c.Ping(ctx)
	s := ServiceStatus{Name: c.Name, Status: "operational", LatencyMs: time.Since(start).Milliseconds()}

	switch {
	case err != nil:
		s.Status = "outage"
		s.Error = err.Error()
		h.logger.Error("Dependency ping failed", map[string]interface{}{"dependency": c.Name, "error": err})
	case c.DegradedAfter > 0 && time.Since(start) > c.DegradedAfter:
		s.Status = "degraded"
	}
	return s
}
