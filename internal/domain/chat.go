package domain

import "time"

// Session represents a chat session
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents one turn of the conversation transcript
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"` // user, assistant
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Citation points from a generated answer back to the source chunk that
// informed it. URL identifies the source document or link; several citations
// may reference different chunks of the same document.
type Citation struct {
	Text     string  `json:"text,omitempty"`
	URL      string  `json:"url"`
	Score    float64 `json:"score,omitempty"`
	Document string  `json:"document_id,omitempty"`
}

// ChatResult is the final structured outcome of one model invocation,
// produced exactly once by the background worker.
type ChatResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations,omitempty"`
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// ChatResponse is the response from a chat message
type ChatResponse struct {
	SessionID string     `json:"session_id"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations,omitempty"`
	Cached    bool       `json:"cached,omitempty"`
}

// StreamChunk represents a chunk in the SSE stream
type StreamChunk struct {
	Type    string `json:"type"` // content, sources, done, error
	Content string `json:"content,omitempty"`
}

// IngestRequest is the request to add a link or YouTube URL
type IngestRequest struct {
	URL string `json:"url" binding:"required"`
}

// IngestResponse reports the outcome of an ingestion
type IngestResponse struct {
	Message string `json:"message"`
	Added   bool   `json:"added"`
}
