package webhook

import (
	"context"

	"github.com/foxseedlab/dictado/internal/repository"
)

const FinalTranscriptSchemaVersion = 1

// FinalTranscriptPayload notifies a collaborator that a session's
// finalization completed.
type FinalTranscriptPayload struct {
	SchemaVersion  int                        `json:"schema_version"`
	SessionID      string                     `json:"session_id"`
	TranscriptID   string                     `json:"transcript_id"`
	Text           string                     `json:"text"`
	PartialCount   int                        `json:"partial_count"`
	Segments       []repository.Segment       `json:"segments"`
	UncertainWords []repository.UncertainWord `json:"uncertain_words"`
	CreatedAt      string                     `json:"created_at"`
}

type Sender interface {
	SendFinalTranscript(ctx context.Context, payload FinalTranscriptPayload) error
}
