// Package intake exposes a localhost HTTP endpoint the injected page script
// posts event batches to. It is a thin transport adapter in front of the
// capture pipeline; the browser side itself lives outside this repo.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"tracecap/internal/capture"
)

// Server receives POST /events batches and forwards each entry to the
// pipeline. Malformed entries are the pipeline's problem, not the transport's.
type Server struct {
	addr     string
	pipeline *capture.Pipeline
	log      *zap.Logger
	srv      *http.Server
}

// batch is the wire shape posted by the page script. Entries stay raw so the
// pipeline applies the same accept rule to every transport.
type batch struct {
	Page    string            `json:"page"`
	Entries []json.RawMessage `json:"entries"`
}

func New(addr string, p *capture.Pipeline, log *zap.Logger) *Server {
	s := &Server{addr: addr, pipeline: p, log: log}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	// The script posts from whatever origin the user is browsing.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/events", s.handleEvents)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var b batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if b.Page == "" {
		http.Error(w, "missing page key", http.StatusBadRequest)
		return
	}
	for _, entry := range b.Entries {
		s.pipeline.Notify(b.Page, string(entry))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start begins listening in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("intake server failed", zap.String("addr", s.addr), zap.Error(err))
		}
	}()
	s.log.Info("event intake listening", zap.String("addr", s.addr))
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
