package polisher

import (
	"context"

	"github.com/foxseedlab/dictado/internal/repository"
)

// Metadata accompanies the merged raw text into the polishing call.
type Metadata struct {
	Words        []repository.Word
	PartialCount int
}

// Result is the polished transcript. Segments and UncertainWords default
// to empty when the model response omits them.
type Result struct {
	Text           string
	Segments       []repository.Segment
	UncertainWords []repository.UncertainWord
}

type Polisher interface {
	Polish(ctx context.Context, text string, meta Metadata) (*Result, error)
}
