package adapter

import "fmt"

// Error reports a remote transcription or polishing call that did not
// succeed: transport failure, auth rejection, or a non-2xx response.
// The status and body are kept for operator diagnostics.
type Error struct {
	Service string
	Status  int
	Body    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s request failed: status %d: %s", e.Service, e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }
