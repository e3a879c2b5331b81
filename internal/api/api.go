// Package api exposes the HTTP surface of WispFlow: the WhatsApp Cloud API
// webhook and a small set of administrative endpoints for support staff.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Conecta2Tel/WispFlow/internal/flow"
	"github.com/Conecta2Tel/WispFlow/internal/store"
)

// Defaults for the HTTP server.
const (
	DefaultAddr = ":8080"
	// DefaultProcessTimeout bounds the asynchronous processing of one webhook
	// message after the delivery has been acknowledged.
	DefaultProcessTimeout = 30 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	VerifyToken    string
	ProcessTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithProcessTimeout overrides the per-message processing timeout.
func WithProcessTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ProcessTimeout = d }
}

// Server is the WispFlow HTTP server.
type Server struct {
	orch     *flow.Orchestrator
	store    store.Store
	handover *flow.Handover
	opts     Opts
	router   chi.Router
	httpSrv  *http.Server
}

// NewServer wires the routes. The verify token is required for the webhook
// handshake; an empty token rejects all verification attempts.
func NewServer(orch *flow.Orchestrator, st store.Store, h *flow.Handover, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ProcessTimeout: DefaultProcessTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{orch: orch, store: st, handover: h, opts: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/webhook", s.handleWebhookVerify)
	r.Post("/webhook", s.handleWebhook)
	r.Route("/conversations/{phone}", func(r chi.Router) {
		r.Get("/", s.handleGetConversation)
		r.Post("/release", s.handleRelease)
		r.Post("/reset", s.handleReset)
	})

	s.router = r
	return s
}

// Handler exposes the router (used by tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{Addr: s.opts.Addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.opts.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, okResult(map[string]string{"status": "ok"}))
}
