package dictation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dispatch"
	"github.com/foxseedlab/dictado/internal/polisher"
	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/foxseedlab/dictado/internal/storage"
	"github.com/foxseedlab/dictado/internal/transcriber"
	"github.com/foxseedlab/dictado/internal/webhook"

	"github.com/google/uuid"
)

const sessionPreviewLength = 100

// Service is the boundary the web/CLI collaborators call into. All
// pipeline work it triggers runs asynchronously on the dispatcher;
// callers observe progress by polling GetTranscript and session status.
type Service struct {
	cfg         *config.Config
	repo        repository.Repository
	blobs       storage.BlobStore
	transcriber transcriber.Transcriber
	polisher    polisher.Polisher
	dispatcher  dispatch.Dispatcher
	webhook     webhook.Sender
}

func NewService(
	cfg *config.Config,
	repo repository.Repository,
	blobs storage.BlobStore,
	stt transcriber.Transcriber,
	llm polisher.Polisher,
	dispatcher dispatch.Dispatcher,
	wh webhook.Sender,
) *Service {
	return &Service{
		cfg:         cfg,
		repo:        repo,
		blobs:       blobs,
		transcriber: stt,
		polisher:    llm,
		dispatcher:  dispatcher,
		webhook:     wh,
	}
}

type SessionSummary struct {
	ID        string
	Title     string
	Status    repository.SessionStatus
	CreatedAt time.Time
	Preview   string
}

type TranscriptView struct {
	Partials []repository.Transcript
	Final    *repository.Transcript
}

func (s *Service) CreateSession(ctx context.Context, userID, title string) (*repository.Session, error) {
	session, err := s.repo.CreateSession(ctx, repository.CreateSessionInput{UserID: userID, Title: title})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("session created", "session_id", session.ID, "user_id", userID)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns the user's sessions, newest first, each with a
// short preview of its most recent transcript.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	sessions, err := s.repo.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summary := SessionSummary{
			ID:        session.ID,
			Title:     session.Title,
			Status:    session.Status,
			CreatedAt: session.CreatedAt,
		}
		latest, err := s.repo.LatestBySessionID(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("load latest transcript for session %s: %w", session.ID, err)
		}
		if latest != nil {
			summary.Preview = truncateRunes(latest.Text, sessionPreviewLength)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UploadChunk persists the audio bytes, records the chunk, and schedules
// its transcription. The audio is durably stored before the stage can
// ever run.
func (s *Service) UploadChunk(ctx context.Context, sessionID, extension string, audio io.Reader, startTime, endTime float64) (*repository.AudioChunk, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	filename := uuid.NewString() + "." + strings.TrimPrefix(extension, ".")
	if err := s.blobs.Save(filename, audio); err != nil {
		return nil, fmt.Errorf("store chunk audio: %w", err)
	}

	chunk, err := s.repo.InsertChunk(ctx, repository.InsertChunkInput{
		SessionID:  sessionID,
		Filename:   filename,
		StartTime:  startTime,
		EndTime:    endTime,
		UploadedAt: time.Now(),
	})
	if err != nil {
		_ = s.blobs.Delete(filename)
		return nil, fmt.Errorf("insert chunk: %w", err)
	}

	chunkID := chunk.ID
	err = s.dispatcher.Enqueue(dispatch.Task{
		Name: "process_chunk:" + chunkID,
		Run: func(ctx context.Context) error {
			err := s.ProcessChunk(ctx, chunkID)
			if errors.Is(err, ErrMissingAudio) {
				// Permanent precondition violation, already logged; no retry.
				return nil
			}
			return err
		},
		OnPermanentFailure: func(err error) {
			slog.Error("chunk processing failed permanently", "chunk_id", chunkID, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue chunk processing: %w", err)
	}

	slog.Info("audio chunk uploaded", "chunk_id", chunk.ID, "session_id", sessionID, "start_time", startTime, "end_time", endTime)
	return chunk, nil
}

// GetTranscript is the polling projection: all partial transcripts plus
// the latest final, if any.
func (s *Service) GetTranscript(ctx context.Context, sessionID string) (*TranscriptView, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	partials, err := s.repo.ListPartialsBySessionID(ctx, sessionID, s.partialOrder())
	if err != nil {
		return nil, fmt.Errorf("list partial transcripts: %w", err)
	}
	final, err := s.repo.LatestFinalBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load final transcript: %w", err)
	}
	return &TranscriptView{Partials: partials, Final: final}, nil
}

// RequestFinalize marks the session processing and schedules the
// finalization stage. At most one finalize runs per session at a time.
func (s *Service) RequestFinalize(ctx context.Context, sessionID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	ok, err := s.repo.MarkSessionProcessing(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("mark session processing: %w", err)
	}
	if !ok {
		return ErrFinalizeInProgress
	}

	err = s.dispatcher.Enqueue(dispatch.Task{
		Name: "finalize:" + sessionID,
		Run: func(ctx context.Context) error {
			return s.Finalize(ctx, sessionID)
		},
		OnPermanentFailure: func(err error) {
			slog.Error("finalization failed permanently", "session_id", sessionID, "error", err)
			s.revertToRecording(context.Background(), sessionID)
		},
	})
	if err != nil {
		s.revertToRecording(ctx, sessionID)
		return fmt.Errorf("enqueue finalization: %w", err)
	}

	slog.Info("finalization requested", "session_id", sessionID)
	return nil
}

// AcceptWordAlternative replaces one word's text in a transcript and
// re-derives the transcript's full text by joining all words with single
// spaces. The only mutation path for transcript text after creation.
func (s *Service) AcceptWordAlternative(ctx context.Context, sessionID, transcriptID string, wordIndex int, acceptedText string) (*repository.Transcript, error) {
	transcript, err := s.repo.GetTranscript(ctx, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if transcript == nil || transcript.SessionID != sessionID {
		return nil, ErrTranscriptNotFound
	}
	if wordIndex < 0 || wordIndex >= len(transcript.Meta.Words) {
		return nil, ErrWordIndexOutOfRange
	}

	words := make([]repository.Word, len(transcript.Meta.Words))
	copy(words, transcript.Meta.Words)
	words[wordIndex].Text = acceptedText
	words[wordIndex].UserEdited = true

	texts := make([]string, 0, len(words))
	for _, w := range words {
		texts = append(texts, w.Text)
	}
	newText := strings.Join(texts, " ")

	if err := s.repo.UpdateTranscriptWords(ctx, transcriptID, newText, words); err != nil {
		return nil, fmt.Errorf("update transcript words: %w", err)
	}

	transcript.Text = newText
	transcript.Meta.Words = words
	slog.Info("word alternative accepted", "transcript_id", transcriptID, "word_index", wordIndex)
	return transcript, nil
}

// DeleteSession removes the session, its chunks and transcripts, and the
// chunks' backing audio data.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	chunks, err := s.repo.ListChunksBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	for _, chunk := range chunks {
		if err := s.blobs.Delete(chunk.Filename); err != nil {
			slog.Error("failed to delete chunk audio", "error", err, "chunk_id", chunk.ID, "filename", chunk.Filename)
		}
	}

	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.Info("session deleted", "session_id", sessionID, "chunk_count", len(chunks))
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
