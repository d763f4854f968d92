package dictation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/polisher"
	"github.com/foxseedlab/dictado/internal/repository"
	"github.com/foxseedlab/dictado/internal/webhook"
)

// ProcessChunk transcribes one uploaded audio chunk and appends a partial
// transcript to its session. Per-chunk and stateless: no stitching with
// adjacent chunks happens here; the finalization stage sees the complete
// ordered view.
func (s *Service) ProcessChunk(ctx context.Context, chunkID string) error {
	chunk, err := s.repo.GetChunk(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("load chunk %s: %w", chunkID, err)
	}
	if chunk == nil {
		slog.Error("audio chunk row not found", "chunk_id", chunkID)
		return ErrMissingAudio
	}

	exists, err := s.blobs.Exists(chunk.Filename)
	if err != nil {
		return fmt.Errorf("check audio blob %s: %w", chunk.Filename, err)
	}
	if !exists {
		slog.Error("audio chunk file not found", "chunk_id", chunk.ID, "filename", chunk.Filename)
		return ErrMissingAudio
	}

	result, err := s.transcriber.Transcribe(ctx, chunk.Filename, s.cfg.DefaultTranscribeLanguage)
	if err != nil {
		return fmt.Errorf("transcribe chunk %s: %w", chunk.ID, err)
	}

	_, err = s.repo.InsertTranscript(ctx, repository.InsertTranscriptInput{
		SessionID: chunk.SessionID,
		Kind:      repository.TranscriptKindPartial,
		Text:      result.Text,
		Meta: repository.TranscriptMeta{
			Words:      result.Words,
			Language:   result.Language,
			Duration:   result.Duration,
			ChunkID:    chunk.ID,
			ChunkStart: chunk.StartTime,
			ChunkEnd:   chunk.EndTime,
		},
	})
	if err != nil {
		return fmt.Errorf("insert partial transcript for chunk %s: %w", chunk.ID, err)
	}

	slog.Info("audio chunk processed",
		"chunk_id", chunk.ID,
		"session_id", chunk.SessionID,
		"word_count", len(result.Words),
		"language", result.Language)
	return nil
}

// Finalize merges the session's partial transcripts in chronological
// order, runs the polishing call once, and appends the final transcript.
// The caller must have already marked the session processing. Each
// invocation re-reads the current partials, so finalize is safely
// re-invokable; it never mutates or consumes partials.
func (s *Service) Finalize(ctx context.Context, sessionID string) error {
	partials, err := s.repo.ListPartialsBySessionID(ctx, sessionID, s.partialOrder())
	if err != nil {
		s.revertToRecording(ctx, sessionID)
		return fmt.Errorf("list partial transcripts: %w", err)
	}

	if len(partials) == 0 {
		slog.Warn("no partial transcripts to finalize", "session_id", sessionID)
		if err := s.repo.UpdateSessionStatus(ctx, sessionID, repository.SessionStatusReady); err != nil {
			return fmt.Errorf("mark empty session ready: %w", err)
		}
		return nil
	}

	texts := make([]string, 0, len(partials))
	var allWords []repository.Word
	for _, p := range partials {
		texts = append(texts, p.Text)
		allWords = append(allWords, p.Meta.Words...)
	}
	fullText := strings.Join(texts, " ")

	polished, err := s.polisher.Polish(ctx, fullText, polisher.Metadata{
		Words:        allWords,
		PartialCount: len(partials),
	})
	if err != nil {
		s.revertToRecording(ctx, sessionID)
		return fmt.Errorf("polish transcript: %w", err)
	}

	final, err := s.repo.InsertTranscript(ctx, repository.InsertTranscriptInput{
		SessionID: sessionID,
		Kind:      repository.TranscriptKindFinal,
		Text:      polished.Text,
		Meta: repository.TranscriptMeta{
			Segments:       polished.Segments,
			UncertainWords: polished.UncertainWords,
			// Original ASR words kept for traceability and undo.
			Words:        allWords,
			PartialCount: len(partials),
		},
	})
	if err != nil {
		s.revertToRecording(ctx, sessionID)
		return fmt.Errorf("insert final transcript: %w", err)
	}

	if err := s.repo.UpdateSessionStatus(ctx, sessionID, repository.SessionStatusReady); err != nil {
		return fmt.Errorf("mark session ready: %w", err)
	}

	slog.Info("transcript finalized",
		"session_id", sessionID,
		"partial_count", len(partials),
		"original_length", len(fullText),
		"polished_length", len(polished.Text))

	if err := s.webhook.SendFinalTranscript(ctx, webhook.FinalTranscriptPayload{
		SchemaVersion:  webhook.FinalTranscriptSchemaVersion,
		SessionID:      sessionID,
		TranscriptID:   final.ID,
		Text:           final.Text,
		PartialCount:   len(partials),
		Segments:       polished.Segments,
		UncertainWords: polished.UncertainWords,
		CreatedAt:      final.CreatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Error("failed to send final transcript webhook", "error", err, "session_id", sessionID)
	}
	return nil
}

func (s *Service) revertToRecording(ctx context.Context, sessionID string) {
	if err := s.repo.UpdateSessionStatus(ctx, sessionID, repository.SessionStatusRecording); err != nil {
		slog.Error("failed to revert session status", "error", err, "session_id", sessionID)
	}
}

func (s *Service) partialOrder() repository.PartialOrder {
	if s.cfg.FinalizeOrder == config.FinalizeOrderChunkStart {
		return repository.PartialOrderChunkStart
	}
	return repository.PartialOrderCreatedAt
}
