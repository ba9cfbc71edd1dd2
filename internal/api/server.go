// Package api exposes the flow controller and the lifecycle engine over
// HTTP for the bot front end.
//
// The acting user is named by the X-User-ID header; the front end is
// trusted to set it and authenticates with X-API-Key.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sh1vu7/secreteshare/internal/account"
	"github.com/sh1vu7/secreteshare/internal/flow"
	"github.com/sh1vu7/secreteshare/internal/lifecycle"
	"github.com/sh1vu7/secreteshare/internal/share"
)

// Flows runs share creation flows.
type Flows interface {
	Start(ctx context.Context, userID int64) (flow.StepResult, error)
	Submit(ctx context.Context, userID int64, ev flow.Event) (flow.StepResult, error)
	Confirm(ctx context.Context, userID int64, flowID string) (*share.Share, error)
	Cancel(ctx context.Context, userID int64, flowID string) error
}

// Shares answers view and management requests.
type Shares interface {
	ResolveView(ctx context.Context, token string, viewer share.Viewer) (share.ViewOutcome, error)
	Detail(ctx context.Context, id string, actorID int64) (*share.Share, error)
	Revoke(ctx context.Context, id string, actorID int64) (bool, error)
	ListBySender(ctx context.Context, senderID int64, page int, all bool) (lifecycle.Page, error)
	Link(token string) string
}

// Settings reads and changes user preferences.
type Settings interface {
	Settings(ctx context.Context, id int64) (account.Settings, error)
	UpdateSettings(ctx context.Context, id int64, fn func(*account.Settings) error) (account.Settings, error)
}

// Options configure a Server.
type Options struct {
	Addr string
	// APIKeys accepted in X-API-Key. Empty disables authentication.
	APIKeys []string
	// ViewRPS and ViewBurst bound view attempts per viewer.
	ViewRPS   float64
	ViewBurst int
	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Health backs /healthz. Nil always reports healthy.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	log        *slog.Logger

	flows    Flows
	shares   Shares
	settings Settings
	opts     Options
	views    *limiterPool
}

// NewServer builds the router. Start serves it.
func NewServer(flows Flows, shares Shares, settings Settings, opts Options) (*Server, error) {
	if flows == nil || shares == nil || settings == nil {
		return nil, errors.New("api: flows, shares and settings are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:   mux.NewRouter(),
		log:      opts.Logger.With("component", "api"),
		flows:    flows,
		shares:   shares,
		settings: settings,
		opts:     opts,
		views:    newLimiterPool(opts.ViewRPS, opts.ViewBurst),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware(s.log))

	// Open routes.
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(apiKeyMiddleware(s.opts.APIKeys))

	v1.HandleFunc("/flows", s.handleStartFlow).Methods(http.MethodPost)
	v1.HandleFunc("/flows/{flowID}/events", s.handleSubmitStep).Methods(http.MethodPost)
	v1.HandleFunc("/flows/{flowID}/confirm", s.handleConfirm).Methods(http.MethodPost)
	v1.HandleFunc("/flows/{flowID}", s.handleCancelFlow).Methods(http.MethodDelete)

	v1.Handle("/views", rateLimitMiddleware(s.views, s.log)(http.HandlerFunc(s.handleView))).Methods(http.MethodPost)

	v1.HandleFunc("/shares/{shareID}", s.handleShareDetail).Methods(http.MethodGet)
	v1.HandleFunc("/shares/{shareID}/revoke", s.handleRevoke).Methods(http.MethodPost)

	v1.HandleFunc("/users/{userID}/shares", s.handleListShares).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userID}/settings", s.handleGetSettings).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userID}/settings", s.handlePatchSettings).Methods(http.MethodPatch)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such route")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.log.Warn("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, codePersistence, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
