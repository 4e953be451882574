// Package chat exposes the conversation endpoints: session lifecycle, the
// transcript, and the chat call in both JSON and SSE-streaming form.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seyyidi/ravenchat/internal/domain"
	"github.com/seyyidi/ravenchat/internal/service"
)

// Handler handles chat API requests
type Handler struct {
	sessions *service.SessionService
}

// NewHandler creates a new chat handler
func NewHandler(sessions *service.SessionService) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateSession)
	r.GET("/:session_id/messages", h.Messages)
	r.POST("/:session_id/chat", h.Chat)
	r.POST("/:session_id/chat/stream", h.ChatStream)
	r.POST("/:session_id/reset", h.Reset)
}

// CreateSession starts a new conversation
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.sessions.CreateSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// Messages returns the session transcript
func (h *Handler) Messages(c *gin.Context) {
	messages, err := h.sessions.Messages(c.Param("session_id"))
	if err != nil {
		status(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Chat handles a chat message and returns the final answer
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.sessions.Submit(c.Request.Context(), c.Param("session_id"), req.Message, nil)
	if err != nil {
		status(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ChatStream handles a chat message over SSE, relaying token deltas as they
// arrive and closing with a done or error event.
func (h *Handler) ChatStream(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	chunks := make(chan domain.StreamChunk, 64)
	go func() {
		defer close(chunks)
		// Sends must not outlive the client: once it disconnects nothing
		// drains chunks, and an unconditional send would park Submit forever
		// with the session lock held.
		send := func(chunk domain.StreamChunk) {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
			}
		}
		_, err := h.sessions.Submit(ctx, sessionID, req.Message, send)
		if err != nil {
			send(domain.StreamChunk{Type: "error", Content: err.Error()})
			return
		}
		send(domain.StreamChunk{Type: "done"})
	}()

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			return false
		}
		writeSSE(w, chunk)
		return chunk.Type != "done" && chunk.Type != "error"
	})
}

// Reset clears the conversation transcript
func (h *Handler) Reset(c *gin.Context) {
	if err := h.sessions.Reset(c.Param("session_id")); err != nil {
		status(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func writeSSE(w io.Writer, chunk domain.StreamChunk) {
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", chunk.Type, string(data))
}

func status(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, domain.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
