// Package api exposes the proxy's operator-facing HTTP surface: a health
// check, a Prometheus scrape endpoint, and a small JSON status snapshot.
// It never touches the SNMP data path itself.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the subset of *proxy.Server the status endpoint needs.
// Keeping it as an interface here, rather than importing internal/proxy
// directly, avoids a cycle now that proxy could reasonably want to log
// through something in api later.
type StatusSource interface {
	Uptime() time.Duration
	CacheSize() int
	PacketsHandled() int64
}

// Status is the JSON body served at /api/status.
type Status struct {
	Port           int     `json:"port"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CacheEntries   int     `json:"cache_entries"`
	PacketsHandled int64   `json:"packets_handled"`
}

// Server is the operator HTTP listener. The zero value is not usable; use
// NewServer.
type Server struct {
	httpServer *http.Server
	source     StatusSource
	port       int
}

// NewServer builds a Server bound to addr, reporting on behalf of port
// (the proxy's SNMP listening port, not this server's own).
func NewServer(addr string, port int, source StatusSource) *Server {
	s := &Server{source: source, port: port}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start blocks serving HTTP until Stop closes the listener.
func (s *Server) Start() error {
	log.Printf("operator http surface listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down within a bounded grace period.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := Status{
		Port:           s.port,
		UptimeSeconds:  s.source.Uptime().Seconds(),
		CacheEntries:   s.source.CacheSize(),
		PacketsHandled: s.source.PacketsHandled(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
