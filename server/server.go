// Package server exposes a publish trigger for an external scheduler.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tweet-publisher/publish"
)

// runTimeout bounds a triggered run once it no longer follows the request.
const runTimeout = 5 * time.Minute

// Publisher interface for running one publish cycle.
type Publisher interface {
	Run(ctx context.Context) (*publish.Result, error)
}

// Server handles HTTP requests.
type Server struct {
	publisher Publisher
	logger    *slog.Logger
	running   sync.Mutex
}

// Config holds server configuration.
type Config struct {
	Publisher Publisher
	Logger    *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/publishz", s.handlePublish)
	return mux
}

// ListenAndServe serves the routes on port until the server fails.
func (s *Server) ListenAndServe(port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      runTimeout + 10*time.Second, // A run waits on several API round-trips
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

type publishResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Only guards this process; separate instances must not be triggered concurrently.
	if !s.running.TryLock() {
		s.logger.Warn("Publish already in progress, rejecting trigger")
		http.Error(w, "Publish already in progress", http.StatusConflict)
		return
	}
	defer s.running.Unlock()

	s.logger.Info("Publish endpoint triggered")

	// A scheduler hanging up must not abort a run between upload and create.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), runTimeout)
	defer cancel()

	res, err := s.publisher.Run(ctx)
	if err != nil {
		s.logger.Error("Publish run failed", "error", err)
		http.Error(w, "Publish failed", http.StatusInternalServerError)
		return
	}

	resp := publishResponse{Status: string(res.Outcome), Message: res.Message}
	if res.Tweet != nil {
		resp.Text = res.Tweet.Text
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
