// Package api provides HTTP handlers and the main API server logic for
// Cresce.
//
// It exposes RESTful endpoints for the conversation orchestrator: state
// reads and transitions, message buffering, context assembly, onboarding,
// feedback, session summaries and runtime state-config edits. The workflow
// runner that fronts the WhatsApp channel is the intended caller.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cresceapp/cresce/internal/flow"
	"github.com/cresceapp/cresce/internal/genai"
	"github.com/cresceapp/cresce/internal/messaging"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the conversation engine and its collaborators to HTTP.
type Server struct {
	engine     *flow.Engine
	genClient  genai.ClientInterface
	msgService messaging.Service
	httpServer *http.Server
}

// NewServer creates a Server around the given engine. The GenAI client and
// messaging service may be nil; the endpoints that need them respond 503.
func NewServer(engine *flow.Engine, genClient genai.ClientInterface, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		engine:     engine,
		genClient:  genClient,
		msgService: msgService,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the HTTP mux. Method checks happen inside the handlers, in
// keeping with the flat mux layout.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.getStateHandler)
	mux.HandleFunc("/state/update", s.updateStateHandler)
	mux.HandleFunc("/transition", s.transitionHandler)
	mux.HandleFunc("/button", s.buttonHandler)
	mux.HandleFunc("/buffer/add", s.bufferAddHandler)
	mux.HandleFunc("/buffer", s.bufferGetHandler)
	mux.HandleFunc("/buffer/consume", s.bufferConsumeHandler)
	mux.HandleFunc("/context", s.contextHandler)
	mux.HandleFunc("/context/prompt", s.contextPromptHandler)
	mux.HandleFunc("/onboarding", s.onboardingHandler)
	mux.HandleFunc("/feedback", s.feedbackHandler)
	mux.HandleFunc("/feedback/trigger", s.feedbackTriggerHandler)
	mux.HandleFunc("/session/summary", s.sessionSummaryHandler)
	mux.HandleFunc("/analytics", s.analyticsHandler)
	mux.HandleFunc("/config/state", s.stateConfigHandler)
	mux.HandleFunc("/turn", s.turnHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("Cresce API running", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// canonicalUserID validates and canonicalizes a user identifier. When a
// messaging service is wired its channel rules apply; otherwise the generic
// phone canonicalization is used.
func (s *Server) canonicalUserID(raw string) (string, error) {
	if s.msgService != nil {
		return s.msgService.ValidateAndCanonicalizeRecipient(raw)
	}
	return messaging.CanonicalizeRecipient(raw)
}
