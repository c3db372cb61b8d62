package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fundportal/internal/cache"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady checks the templates and the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	default:
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.GetMetrics().ClientCount,
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	writes := s.rateLimiter.GetMetrics()
	logins := s.loginLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	var reportCache cache.Stats
	if s.svc.Reports != nil {
		reportCache = s.svc.Reports.CacheStats()
	}

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, lines ...string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		for _, l := range lines {
			fmt.Fprintf(w, "%s%s\n", name, l)
		}
		fmt.Fprintln(w)
	}
	val := func(v int64) string { return fmt.Sprintf(" %d", v) }
	labelled := func(label, value string, v int64) string {
		return fmt.Sprintf("{%s=%q} %d", label, value, v)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", val(traceMetrics.TotalRequests))
	metric("http_requests_in_flight", "gauge", "Requests being served", val(traceMetrics.InFlight))
	metric("http_errors_total", "counter", "Responses with an error status",
		labelled("class", "4xx", traceMetrics.ClientErrors),
		labelled("class", "5xx", traceMetrics.ServerErrors))
	metric("http_response_time_microseconds", "gauge", "Average response time", val(traceMetrics.AverageResponseTime))

	metric("logins_total", "counter", "Successful logins", val(s.appMetrics.logins.Load()))
	metric("demands_submitted_total", "counter", "Fund demands submitted", val(s.appMetrics.submitted.Load()))
	metric("demands_decided_total", "counter", "Fund demands approved, rejected or sent back", val(s.appMetrics.decided.Load()))
	metric("vendor_assignments_total", "counter", "Vendor assignments stored", val(s.appMetrics.assignments.Load()))
	metric("vendor_assignments_refused_total", "counter", "Vendor assignments refused as not assignable", val(s.appMetrics.refused.Load()))

	metric("report_cache_hits_total", "counter", "Dashboard cache hits", val(reportCache.Hits))
	metric("report_cache_misses_total", "counter", "Dashboard cache misses", val(reportCache.Misses))
	metric("report_cache_entries", "gauge", "Dashboard cache entries", val(int64(reportCache.Size)))

	metric("rate_limit_hits_total", "counter", "Requests counted by a rate limiter",
		labelled("limiter", "writes", writes.TotalHits),
		labelled("limiter", "login", logins.TotalHits))
	metric("rate_limit_rejected_total", "counter", "Requests refused by a rate limiter",
		labelled("limiter", "writes", writes.Rejected),
		labelled("limiter", "login", logins.Rejected))
	metric("rate_limit_clients", "gauge", "Clients tracked by a rate limiter",
		labelled("limiter", "writes", writes.ClientCount),
		labelled("limiter", "login", logins.ClientCount))

	metric("security_inspected_total", "counter", "Requests inspected", val(securityMetrics.Inspected))
	metric("security_suspicious_requests_total", "counter", "Requests flagged as suspicious", val(securityMetrics.SuspiciousRequests))
	metric("security_invalid_ip_total", "counter", "Requests with an unparseable client address", val(securityMetrics.InvalidIPAttempts))

	metric("uptime_seconds", "gauge", "Seconds since the server started", val(int64(time.Since(s.appMetrics.uptime).Seconds())))
}
