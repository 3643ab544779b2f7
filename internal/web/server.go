// Package web exposes the HTTP surface: a multipart upload endpoint that
// runs the parsing pipeline, plus health and metrics.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sheetmap/internal/config"
	"sheetmap/internal/pipeline"
)

type Server struct {
	cfg     config.Config
	service *pipeline.ProcessingService
	router  *chi.Mux
}

func NewServer(cfg config.Config, service *pipeline.ProcessingService) *Server {
	s := &Server{cfg: cfg, service: service, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Get("/", s.handleInfo)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Post("/api/parse", s.handleParse)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe() error {
	server := &http.Server{
		Addr:              s.cfg.ServerAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
