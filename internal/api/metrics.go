package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/astroconsole/internal/bridges/indi"
	"github.com/nerrad567/astroconsole/internal/gateway"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Sessions      SessionMetrics    `json:"sessions"`
	Hub           gateway.Stats     `json:"hub"`
	Link          *indi.Stats       `json:"link,omitempty"`
	Mirrors       map[string]uint64 `json:"mirrors_dropped,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SessionMetrics contains client session statistics.
type SessionMetrics struct {
	Open int `json:"open"`
}

// handleMetrics returns runtime, session, hub, link and mirror metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Sessions: SessionMetrics{Open: s.sessionCount()},
		Hub:      s.hub.Stats(),
	}

	if s.link != nil {
		stats := s.link.Stats()
		metrics.Link = &stats
	}

	if len(s.mirrors) > 0 {
		metrics.Mirrors = make(map[string]uint64, len(s.mirrors))
		for name, m := range s.mirrors {
			metrics.Mirrors[name] = m.Dropped()
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
