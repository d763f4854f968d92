package repository

import "time"

type SessionStatus string

const (
	SessionStatusRecording  SessionStatus = "recording"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusReady      SessionStatus = "ready"
)

type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// UncertainConfidenceThreshold is the per-word confidence below which a
// partial transcript word is surfaced to the user for manual correction.
const UncertainConfidenceThreshold = 0.7

type Session struct {
	ID        string
	UserID    string
	Title     string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AudioChunk struct {
	ID         string
	SessionID  string
	Filename   string
	StartTime  float64
	EndTime    float64
	UploadedAt time.Time
	CreatedAt  time.Time
}

// Word is one recognized word with time offsets in seconds relative to
// its chunk and an ASR confidence in [0,1].
type Word struct {
	Text         string   `json:"text"`
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
	UserEdited   bool     `json:"user_edited,omitempty"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type UncertainWord struct {
	Word         string   `json:"word"`
	Position     int      `json:"position"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// TranscriptMeta carries the word-level and segment-level metadata of a
// transcript. Partial transcripts fill the chunk back-reference fields;
// final transcripts fill Segments and UncertainWords and retain the
// merged ASR words for traceability.
type TranscriptMeta struct {
	Words          []Word          `json:"words,omitempty"`
	Language       string          `json:"language,omitempty"`
	Duration       float64         `json:"duration,omitempty"`
	ChunkID        string          `json:"chunk_id,omitempty"`
	ChunkStart     float64         `json:"chunk_start,omitempty"`
	ChunkEnd       float64         `json:"chunk_end,omitempty"`
	PartialCount   int             `json:"partial_count,omitempty"`
	Segments       []Segment       `json:"segments,omitempty"`
	UncertainWords []UncertainWord `json:"uncertain_words,omitempty"`
}

type Transcript struct {
	ID        string
	SessionID string
	Kind      TranscriptKind
	Text      string
	Meta      TranscriptMeta
	CreatedAt time.Time
}

// UncertainWords returns the words of a partial transcript whose
// confidence falls below the threshold or that carry alternatives.
func (t *Transcript) UncertainWords() []Word {
	var out []Word
	for _, w := range t.Meta.Words {
		if w.Confidence < UncertainConfidenceThreshold || len(w.Alternatives) > 0 {
			out = append(out, w)
		}
	}
	return out
}
