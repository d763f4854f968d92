package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dictation"
)

// Server exposes the dictation service as a JSON API. All pipeline work
// stays asynchronous: mutating endpoints return 202 and clients poll the
// transcript endpoint for progress.
type Server struct {
	cfg *config.Config
	svc *dictation.Service
}

func NewServer(cfg *config.Config, svc *dictation.Service) *Server {
	return &Server{cfg: cfg, svc: svc}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/transcribe/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/transcribe/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/transcribe/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/transcribe/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/transcribe/sessions/{id}/chunks", s.handleUploadChunk)
	mux.HandleFunc("GET /api/transcribe/sessions/{id}/transcript", s.handleGetTranscript)
	mux.HandleFunc("POST /api/transcribe/sessions/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("POST /api/transcribe/sessions/{id}/accept-word", s.handleAcceptWord)

	return logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
