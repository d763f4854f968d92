package transcriber

import (
	"context"

	"github.com/foxseedlab/dictado/internal/repository"
)

// DefaultConfidence is assigned to words whose backend reports no
// per-word confidence. A fixed approximation, not a measured value.
const DefaultConfidence = 0.9

// Result is one chunk's transcription. Words is never nil; a backend
// response without word timestamps yields an empty slice.
type Result struct {
	Text     string
	Language string
	Duration float64
	Words    []repository.Word
}

type Transcriber interface {
	// Transcribe recognizes one stored audio segment. The language hint
	// may be empty, in which case the backend's default applies.
	Transcribe(ctx context.Context, filename string, language string) (*Result, error)
}
