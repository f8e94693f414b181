package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/astroconsole/internal/audit"
	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/gateway"
)

// healthCheckTimeout bounds the component checks run by the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildProxyRouter creates the client-facing router. Every path that is not
// part of the REST surface is a websocket session endpoint.
func (s *Server) buildProxyRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{device}", s.handleGetDevice)
		r.Get("/commands", s.handleListCommands)
	})

	r.HandleFunc("/*", s.handleSession)

	return r
}

// buildWebUIRouter creates the static file router for the browser UI.
func (s *Server) buildWebUIRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/*", http.FileServer(http.Dir(s.webCfg.Root)))

	return r
}

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Link    *indi.Stats       `json:"link,omitempty"`
	Hub     gateway.Stats     `json:"hub"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth reports the link state and optional component checks.
// The gateway is degraded while the upstream link is down or any check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Hub:     s.hub.Stats(),
	}

	if s.link != nil {
		stats := s.link.Stats()
		resp.Link = &stats
		if !stats.Connected {
			resp.Status = "degraded"
		}
	}

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.HealthCheck(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleListDevices returns the current device model snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	props, err := s.hub.Snapshot(r.Context())
	if err != nil {
		s.logger.Warn("snapshot failed", "error", err)
		writeUnavailable(w, "device model unavailable")
		return
	}
	if props == nil {
		props = []indi.Property{}
	}
	writeJSON(w, http.StatusOK, props)
}

// handleGetDevice returns the properties of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")

	props, err := s.hub.Snapshot(r.Context())
	if err != nil {
		s.logger.Warn("snapshot failed", "error", err)
		writeUnavailable(w, "device model unavailable")
		return
	}

	var out []indi.Property
	for _, p := range props {
		if p.Device == device {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListCommands returns a page of the command log.
//
// Query parameters: device, command, source, limit, offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "command log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Device:  q.Get("device"),
		Command: q.Get("command"),
		Source:  q.Get("source"),
	}

	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit")); !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = queryInt(q.Get("offset")); !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command log failed", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
