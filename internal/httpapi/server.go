// Package httpapi exposes metric results as JSON for the dashboard and the
// insight generator. It serves structured results only, never raw records.
package httpapi

import (
	"net/http"

	"donorpulse/internal/services"
)

type Server struct {
	pipeline *services.Pipeline
}

// NewServer builds the API server around an already-loaded pipeline.
func NewServer(addr string, pipeline *services.Pipeline) *http.Server {
	s := &Server{pipeline: pipeline}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetric)
	mux.HandleFunc("GET /api/metrics/all", s.handleAllMetrics)

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
