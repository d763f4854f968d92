package dictation

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrTranscriptNotFound = errors.New("transcript not found")
	// ErrFinalizeInProgress reports that a finalization run is already in
	// flight for the session.
	ErrFinalizeInProgress = errors.New("finalization already in progress")
	// ErrMissingAudio reports that a chunk's backing audio could not be
	// located at processing time. A permanent precondition violation: the
	// chunk is skipped, not retried.
	ErrMissingAudio = errors.New("audio chunk data not found")
	ErrWordIndexOutOfRange = errors.New("word index out of range")
)
