package repository

import (
	"context"
	"time"
)

// PartialOrder selects the chronological tie-break used when the
// finalization stage merges partial transcripts.
type PartialOrder string

const (
	// PartialOrderCreatedAt merges in transcription completion order.
	PartialOrderCreatedAt PartialOrder = "created_at"
	// PartialOrderChunkStart merges by the chunk's declared audio offset.
	PartialOrderChunkStart PartialOrder = "chunk_start"
)

type CreateSessionInput struct {
	UserID string
	Title  string
}

type InsertChunkInput struct {
	SessionID  string
	Filename   string
	StartTime  float64
	EndTime    float64
	UploadedAt time.Time
}

type InsertTranscriptInput struct {
	SessionID string
	Kind      TranscriptKind
	Text      string
	Meta      TranscriptMeta
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status SessionStatus) error
	// MarkSessionProcessing transitions the session to processing and
	// reports whether the transition happened; false means a finalization
	// run is already in flight.
	MarkSessionProcessing(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type ChunkRepository interface {
	InsertChunk(ctx context.Context, input InsertChunkInput) (*AudioChunk, error)
	GetChunk(ctx context.Context, chunkID string) (*AudioChunk, error)
	ListChunksBySessionID(ctx context.Context, sessionID string) ([]AudioChunk, error)
}

type TranscriptRepository interface {
	InsertTranscript(ctx context.Context, input InsertTranscriptInput) (*Transcript, error)
	GetTranscript(ctx context.Context, transcriptID string) (*Transcript, error)
	// ListPartialsBySessionID returns the session's partial transcripts in
	// ascending order of the given key.
	ListPartialsBySessionID(ctx context.Context, sessionID string, order PartialOrder) ([]Transcript, error)
	LatestFinalBySessionID(ctx context.Context, sessionID string) (*Transcript, error)
	LatestBySessionID(ctx context.Context, sessionID string) (*Transcript, error)
	UpdateTranscriptWords(ctx context.Context, transcriptID, text string, words []Word) error
}

type Repository interface {
	SessionRepository
	ChunkRepository
	TranscriptRepository
}
