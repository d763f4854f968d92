package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/foxseedlab/dictado/internal/dictation"
	"github.com/foxseedlab/dictado/internal/repository"
)

// allowedChunkExtensions mirrors the formats the recorder produces.
var allowedChunkExtensions = map[string]bool{
	"webm": true,
	"ogg":  true,
	"mp3":  true,
	"wav":  true,
	"m4a":  true,
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionSummaryResponse struct {
	sessionResponse
	Preview string `json:"preview,omitempty"`
}

type transcriptResponse struct {
	ID             string                    `json:"id"`
	Text           string                    `json:"text"`
	Meta           repository.TranscriptMeta `json:"meta"`
	UncertainWords []repository.Word         `json:"uncertain_words"`
	CreatedAt      time.Time                 `json:"created_at"`
}

func toSessionResponse(s *repository.Session) sessionResponse {
	return sessionResponse{ID: s.ID, Title: s.Title, Status: string(s.Status), CreatedAt: s.CreatedAt}
}

func toTranscriptResponse(t *repository.Transcript) transcriptResponse {
	return transcriptResponse{
		ID:             t.ID,
		Text:           t.Text,
		Meta:           t.Meta,
		UncertainWords: t.UncertainWords(),
		CreatedAt:      t.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requireUser reads the identity the upstream proxy injects. Requests
// without it never reach the service layer.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return userID, true
}

// ownedSession loads the session and enforces per-user scoping. Sessions
// of other users are indistinguishable from missing ones.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request, userID string) (*repository.Session, bool) {
	session, err := s.svc.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, dictation.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load session")
			slog.Error("failed to load session", "error", err, "session_id", r.PathValue("id"))
		}
		return nil, false
	}
	if session.UserID != userID {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.svc.CreateSession(r.Context(), userID, strings.TrimSpace(body.Title))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		slog.Error("failed to create session", "error", err, "user_id", userID)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	summaries, err := s.svc.ListSessions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		slog.Error("failed to list sessions", "error", err, "user_id", userID)
		return
	}
	out := make([]sessionSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, sessionSummaryResponse{
			sessionResponse: sessionResponse{ID: s.ID, Title: s.Title, Status: string(s.Status), CreatedAt: s.CreatedAt},
			Preview:         s.Preview,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	session, ok := s.ownedSession(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	session, ok := s.ownedSession(w, r, userID)
	if !ok {
		return
	}

	// Cap covers the audio plus multipart framing overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxChunkUploadBytes+64*1024)
	if err := r.ParseMultipartForm(s.cfg.MaxChunkUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "chunk upload too large or malformed")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Error("failed to clean multipart temp files", "error", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "missing file field")
		return
	}
	defer file.Close()

	extension, err := chunkExtension(header)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	startTime, err := parseOffset(r.FormValue("start_time"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "start_time must be a non-negative number")
		return
	}
	endTime, err := parseOffset(r.FormValue("end_time"))
	if err != nil || endTime < startTime {
		writeError(w, http.StatusUnprocessableEntity, "end_time must be a number not less than start_time")
		return
	}

	chunk, err := s.svc.UploadChunk(r.Context(), session.ID, extension, file, startTime, endTime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store chunk")
		slog.Error("failed to store chunk", "error", err, "session_id", session.ID)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"chunk_id": chunk.ID,
		"status":   "processing",
	})
}

func chunkExtension(header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !allowedChunkExtensions[ext] {
		return "", errors.New("unsupported audio format")
	}
	return ext, nil
}

func parseOffset(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid offset")
	}
	return v, nil
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	session, ok := s.ownedSession(w, r, userID)
	if !ok {
		return
	}

	view, err := s.svc.GetTranscript(r.Context(), session.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		slog.Error("failed to load transcript", "error", err, "session_id", session.ID)
		return
	}

	partials := make([]transcriptResponse, 0, len(view.Partials))
	for i := range view.Partials {
		partials = append(partials, toTranscriptResponse(&view.Partials[i]))
	}
	resp := map[string]any{
		"status":   string(session.Status),
		"partials": partials,
		"final":    nil,
	}
	if view.Final != nil {
		resp["final"] = toTranscriptResponse(view.Final)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	session, ok := s.ownedSession(w, r, userID)
	if !ok {
		return
	}

	err := s.svc.RequestFinalize(r.Context(), session.ID)
	switch {
	case errors.Is(err, dictation.ErrFinalizeInProgress):
		writeError(w, http.StatusConflict, "finalization already in progress")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to queue finalization")
		slog.Error("failed to queue finalization", "error", err, "session_id", session.ID)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "queued",
			"message": "Transcript finalization in progress",
		})
	}
}

func (s *Server) handleAcceptWord(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	session, ok := s.ownedSession(w, r, userID)
	if !ok {
		return
	}

	var body struct {
		TranscriptID string `json:"transcript_id"`
		WordIndex    *int   `json:"word_index"`
		AcceptedText string `json:"accepted_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.TranscriptID == "" || body.WordIndex == nil || strings.TrimSpace(body.AcceptedText) == "" {
		writeError(w, http.StatusUnprocessableEntity, "transcript_id, word_index and accepted_text are required")
		return
	}

	transcript, err := s.svc.AcceptWordAlternative(r.Context(), session.ID, body.TranscriptID, *body.WordIndex, body.AcceptedText)
	switch {
	case errors.Is(err, dictation.ErrTranscriptNotFound):
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	case errors.Is(err, dictation.ErrWordIndexOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, "word_index out of range")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to update transcript")
		slog.Error("failed to accept word alternative", "error", err, "session_id", session.ID, "transcript_id", body.TranscriptID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "updated",
		"transcript": toTranscriptResponse(transcript),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	session, ok := s.ownedSession(w, r, userID)
	if !ok {
		return
	}
	if err := s.svc.DeleteSession(r.Context(), session.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		slog.Error("failed to delete session", "error", err, "session_id", session.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
