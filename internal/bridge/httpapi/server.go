// Package httpapi exposes the bridge channel over HTTP for the extension.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/formpilot/internal/bridge"
)

const maxBodyBytes = 4 << 20

// Options configures the HTTP transport.
type Options struct {
	Addr           string
	AllowedOrigins []string
}

// Sender delivers a message and waits for its reply.
type Sender interface {
	Send(ctx context.Context, msg bridge.Message) (bridge.Reply, error)
}

// Server serves the bridge over HTTP.
type Server struct {
	opts   Options
	sender Sender
	router chi.Router
}

// New builds the routes.
func New(sender Sender, opts Options) *Server {
	s := &Server{opts: opts, sender: sender}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/message", s.handleMessage)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg bridge.Message
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if msg.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action is required"})
		return
	}

	reply, err := s.sender.Send(r.Context(), msg)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case eris.Is(err, bridge.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, bridge.Reply{ID: msg.ID, Action: msg.Action, Error: err.Error()})
	case eris.Is(err, bridge.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, bridge.Reply{ID: msg.ID, Action: msg.Action, Error: err.Error()})
	default:
		// Client went away.
		zap.L().Debug("httpapi: request abandoned", zap.String("action", msg.Action), zap.Error(err))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("httpapi: listening", zap.String("addr", s.opts.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !eris.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "httpapi: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("httpapi: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "httpapi: shutdown")
	}
	<-errc
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("httpapi: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("httpapi: write response", zap.Error(err))
	}
}
