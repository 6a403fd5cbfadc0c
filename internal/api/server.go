// Package api provides the HTTP server for the booking bot.
//
// It exposes the Twilio webhook, health and metrics, plus a JSON message
// endpoint and conversation and booking lookups that require a signed
// bearer token.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/venuefarm/bookingbot/internal/models"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
)

// Processor runs inbound text through the conversation and exposes stored state.
type Processor interface {
	ProcessChannel(ctx context.Context, channel, identifier, text string) (models.EngineResult, error)
	State(ctx context.Context, identifier string) (*models.ConversationState, error)
}

// BookingLister returns a user's bookings.
type BookingLister interface {
	ListBookings(ctx context.Context, userIdentifier string) ([]models.Booking, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server is the booking bot's HTTP surface.
type Server struct {
	processor     Processor
	bookings      BookingLister
	canonicalize  func(string) (string, error)
	twilioWebhook http.Handler
	metrics       http.Handler
	healthChecks  map[string]HealthCheck
	apiSecret     string
	addr          string
	httpServer    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithTwilioWebhook mounts h at POST /webhook/twilio.
func WithTwilioWebhook(h http.Handler) Option {
	return func(s *Server) { s.twilioWebhook = h }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.healthChecks[name] = check
		}
	}
}

// WithAPISecret sets the HMAC secret for bearer tokens on the user-data
// routes (/messages, /conversations, /bookings). Without it those routes
// answer 401.
func WithAPISecret(secret string) Option {
	return func(s *Server) { s.apiSecret = secret }
}

// WithIdentifierCanonicalizer normalizes identifiers in requests, typically
// to the digits-only form transports use.
func WithIdentifierCanonicalizer(fn func(string) (string, error)) Option {
	return func(s *Server) { s.canonicalize = fn }
}

// NewServer creates a Server.
func NewServer(processor Processor, bookings BookingLister, opts ...Option) *Server {
	s := &Server{
		processor:    processor,
		bookings:     bookings,
		canonicalize: func(id string) (string, error) { return id, nil },
		healthChecks: make(map[string]HealthCheck),
		addr:         DefaultAddr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.twilioWebhook != nil {
		r.Method(http.MethodPost, "/webhook/twilio", s.twilioWebhook)
	}
	r.Group(func(r chi.Router) {
		r.Use(adminJWT(s.apiSecret))
		r.Post("/messages", s.messageHandler)
		r.Get("/conversations/{identifier}", s.conversationHandler)
		r.Get("/bookings", s.bookingsHandler)
	})
	if s.apiSecret == "" {
		slog.Warn("Server.Routes: no API secret, user-data routes are disabled")
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestLogger logs one line per request with chi's request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()))
	})
}
