// Package api provides HTTP handlers and the main API server logic for ClinicPipe.
//
// It exposes RESTful endpoints for querying availability, booking
// appointments, and managing a tenant's service catalog. Booking and catalog
// mutations run through the flow engine; plain reads and appointment patches
// go straight to the store.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ClinicPipe/ClinicPipe/internal/availability"
	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/store"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server routes HTTP requests to the store and the flow engine.
type Server struct {
	addr     string
	st       store.Store
	engine   *engine.Engine
	resolver *availability.Resolver

	httpServer *http.Server
}

// NewServer builds the API server. The listen address falls back to the
// API_ADDR environment variable, then to ":8080". The store doubles as the
// resolver's availability source.
func NewServer(st store.Store, eng *engine.Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("API_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{
		addr:     cfg.Addr,
		st:       st,
		engine:   eng,
		resolver: availability.NewResolver(st),
	}
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/availability", s.availabilityHandler)
	mux.HandleFunc("/availability-windows", s.availabilityWindowsHandler)
	mux.HandleFunc("/appointments/book", s.bookAppointmentHandler)
	mux.HandleFunc("/appointments", s.appointmentsHandler)
	mux.HandleFunc("/appointments/", s.appointmentByIDHandler)
	mux.HandleFunc("/services", s.servicesHandler)
	mux.HandleFunc("/services/", s.serviceByIDHandler)
	mux.HandleFunc("/categories", s.categoriesHandler)
	mux.HandleFunc("/categories/", s.categoryByIDHandler)
	mux.HandleFunc("/catalog/services", s.catalogServicesFlowHandler)
	mux.HandleFunc("/catalog/services/", s.catalogServiceByIDFlowHandler)
	mux.HandleFunc("/catalog/categories", s.catalogCategoriesFlowHandler)
	mux.HandleFunc("/catalog/categories/", s.catalogCategoryByIDFlowHandler)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Server.Run: ClinicPipe API listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
