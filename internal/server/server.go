// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/kpi-insights/internal/artifact"
	"github.com/sells-group/kpi-insights/internal/config"
	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/monitoring"
	"github.com/sells-group/kpi-insights/internal/pipeline"
	"github.com/sells-group/kpi-insights/internal/store"
)

// Runner processes one uploaded workbook.
type Runner interface {
	Run(ctx context.Context, up pipeline.Upload) (*model.Result, error)
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	cfg       config.ServerConfig
	runner    Runner
	store     store.Store
	artifacts artifact.Sink
	stats     *monitoring.Collector
}

// New creates a Server. A nil sink makes downloads read from the store only.
func New(cfg config.ServerConfig, runner Runner, st store.Store, sink artifact.Sink) *Server {
	if sink == nil {
		sink = artifact.Nop{}
	}
	return &Server{
		cfg:       cfg,
		runner:    runner,
		store:     st,
		artifacts: sink,
		stats:     monitoring.NewCollector(st, 0),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Post("/upload_file", s.handleUpload)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/stats", s.handleRunStats)
		r.Get("/runs/{runID}", s.handleGetRun)
	})

	r.Route("/download", func(r chi.Router) {
		r.Get("/supplier_kpi_file", s.handleDownloadKPIs)
		r.Get("/supplier_kpi_workbook", s.handleDownloadWorkbook)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}
