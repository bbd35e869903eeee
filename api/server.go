// Package api provides the HTTP surface of the gateway.
//
// Endpoints:
//
//	POST /chat                             → web chat turn
//	POST /whatsapp                         → Twilio WhatsApp webhook
//	POST /twilio/status                    → Twilio delivery callbacks
//	GET  /meta/webhook                     → Meta webhook verification
//	POST /meta/webhook                     → Meta WhatsApp events
//	GET  /static/generated_images/{file}   → generated image serving
//	GET  /health                           → liveness probe
//	GET  /logs                             → recent diagnostic log lines
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: recovery, logging, CORS
//   - chat.go: web chat endpoint
//   - twilio.go: Twilio webhook and status callback
//   - meta.go: Meta WhatsApp webhook
//   - static.go: generated image serving
//   - health.go: health and diagnostics endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nviv/nviv/internal/diag"
	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/media"
	"github.com/nviv/nviv/internal/messaging"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second

	// processTimeout bounds one background webhook turn end to end.
	processTimeout = 5 * time.Minute
)

// ChatService runs conversation turns. Satisfied by *agent.Agent.
type ChatService interface {
	Chat(ctx context.Context, message, threadID string) string
	ResetHistory(ctx context.Context, threadID string)
}

// Transcriber converts voice notes to text. Satisfied by
// *speech.Transcriber.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename, contentType string) (string, error)
}

// ServerConfig holds the server's collaborators. Chat is required; the
// rest degrade gracefully when absent.
type ServerConfig struct {
	Chat        ChatService
	Transcriber Transcriber
	Twilio      *messaging.Twilio
	Meta        *messaging.Meta
	Images      *media.Store
	Diag        *diag.Buffer
	Logger      log.Logger

	// MetaVerifyToken must match the token configured in the Meta app's
	// webhook settings.
	MetaVerifyToken string
}

// Server is the gateway's HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	// background tracks webhook turns running past their request.
	background sync.WaitGroup

	chat   *ChatHandler
	twilio *TwilioHandler
	meta   *MetaHandler
	static *StaticHandler
	health *HealthHandler
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.chat = &ChatHandler{service: cfg.Chat, logger: logger}
	s.twilio = &TwilioHandler{
		service:     cfg.Chat,
		transcriber: cfg.Transcriber,
		sender:      cfg.Twilio,
		logger:      logger,
		background:  &s.background,
	}
	s.meta = &MetaHandler{
		service:     cfg.Chat,
		transcriber: cfg.Transcriber,
		sender:      cfg.Meta,
		verifyToken: cfg.MetaVerifyToken,
		logger:      logger,
		background:  &s.background,
	}
	s.static = &StaticHandler{images: cfg.Images, logger: logger}
	s.health = &HealthHandler{diag: cfg.Diag}

	s.chat.RegisterRoutes(s.mux)
	s.twilio.RegisterRoutes(s.mux)
	s.meta.RegisterRoutes(s.mux)
	s.static.RegisterRoutes(s.mux)
	s.health.RegisterRoutes(s.mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → CORS → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware,
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully and waits for in-flight webhook turns.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.background.Wait()
		return err
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// WaitBackground blocks until all background webhook turns finish. Used by
// tests.
func (s *Server) WaitBackground() {
	s.background.Wait()
}
