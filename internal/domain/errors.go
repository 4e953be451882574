package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMissingAPIKey indicates the configured provider needs an API key
	ErrMissingAPIKey = errors.New("api key is required")
	// ErrSessionBusy indicates a chat or ingestion is already in flight
	ErrSessionBusy = errors.New("session is busy with another request")
)

// Ingest kinds
const (
	IngestKindPDF     = "pdf"
	IngestKindLink    = "link"
	IngestKindYouTube = "youtube"
)

// IngestError reports a failed knowledge-base addition. It is converted to a
// user-visible transcript message and never crashes the session; the item is
// not marked as added so it can be retried.
type IngestError struct {
	Kind string
	Item string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("Error adding %s to knowledge base: %v", e.Item, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}
