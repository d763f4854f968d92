package storage

import "io"

// BlobStore is the durable keyed store for uploaded chunk audio. Keys are
// opaque filenames; the upload collaborator persists audio before the
// transcription stage ever runs.
type BlobStore interface {
	Save(filename string, r io.Reader) error
	Exists(filename string) (bool, error)
	Open(filename string) (io.ReadCloser, error)
	Delete(filename string) error
}
