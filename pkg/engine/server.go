package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	cachepkg "github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/models"
)

// Server is the HTTP surface over the routing engine.
type Server struct {
	engine *Engine
	cache  *cachepkg.Cache
	listen string
	mux    *http.ServeMux
}

// NewServer wires the HTTP handlers.
func NewServer(e *Engine, cache *cachepkg.Cache, listen string) *Server {
	s := &Server{
		engine: e,
		cache:  cache,
		listen: listen,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/route", s.handleRoute)
	s.mux.HandleFunc("/v1/stats", s.handleStats)
	s.mux.HandleFunc("/v1/breaker", s.handleBreaker)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("atelier routing engine listening on %s", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var rr models.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&rr); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	r.Body.Close()

	rr.APIKey = extractAPIKey(r)
	if rr.UserID == "" {
		rr.UserID = rr.APIKey
	}
	if rr.SessionID == "" {
		rr.SessionID = r.Header.Get("X-Atelier-Session")
	}

	result, err := s.engine.Route(r.Context(), rr)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.CacheHit {
		w.Header().Set("X-Atelier-Cache", "hit")
	} else {
		w.Header().Set("X-Atelier-Cache", "miss")
	}
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summaries, err := s.engine.Stats(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"summaries": summaries})
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.BreakerStatus())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}

	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","breaker":%q}`, s.engine.BreakerStatus().State)
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"atelier_error","code":%d}}`, message, code)
}
