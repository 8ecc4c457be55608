// Package control exposes the call orchestrator over a small JSON HTTP API
// for a local UI or an operator.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opd-ai/toxcall/call"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Controller is the subset of the orchestrator the API drives.
type Controller interface {
	StartCall(ctx context.Context, peerID string, kind call.MediaKind) (string, error)
	AcceptCall(ctx context.Context, callID, peerID string, kind call.MediaKind, offer string) error
	RejectCall(ctx context.Context, callID, peerID string) error
	EndCall(ctx context.Context) error
	ForceReset(ctx context.Context) error
	ToggleMute() bool
	ToggleVideo() bool
	SwitchCamera() bool
	ToggleSpeaker() bool
	CurrentSession() (call.SessionInfo, bool)
	GetCallStats() (call.CallStats, error)
}

var _ Controller = (*call.Orchestrator)(nil)

// Options configures the HTTP server.
type Options struct {
	ListenAddr     string
	AllowedOrigins []string
	// RequestTimeout bounds a single call operation.
	RequestTimeout time.Duration
}

// Server serves the control API.
type Server struct {
	ctrl Controller
	opts Options
	srv  *http.Server
}

// NewServer creates a server. It does not listen until ListenAndServe.
func NewServer(ctrl Controller, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{ctrl: ctrl, opts: opts}
	s.srv = &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/reset", s.handleReset)
		r.Route("/call", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/", s.handleStart)
			r.Delete("/", s.handleEnd)
			r.Post("/accept", s.handleAccept)
			r.Post("/reject", s.handleReject)
			r.Get("/stats", s.handleStats)
			r.Post("/{toggle}", s.handleToggle)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "ListenAndServe",
			"addr":     s.opts.ListenAddr,
		}).Info("Control API listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"function":   "requestLogger",
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed":    time.Since(start).String(),
		}).Debug("Control request")
	})
}
