package http

import (
	"context"
	"net/http"
	"time"

	"expenses/internal/log"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense Tracker API", Version: APIVersion})
}

// handleHealth is a liveness check: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks that the store answers within a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if err := s.service.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	limits := s.limiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": limits.ClientCount,
		"rejected":       limits.TotalHits,
	}
	checks["requests_served"] = s.tracer.TotalRequests()
	checks["suspicious_requests"] = s.detector.SuspiciousRequests()

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.service.Summary(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to compute summary", err, log.OpSummary)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.service.Categories(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to list categories", err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// internalError logs err with the request's logger and answers 500 without
// leaking details.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error, op string) {
	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), msg, err, op, nil)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
