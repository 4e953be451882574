// Package ingest exposes the knowledge-base side channel: PDF upload, web
// links, and YouTube links.
package ingest

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seyyidi/ravenchat/internal/domain"
	"github.com/seyyidi/ravenchat/internal/service"
)

// MaxUploadSize bounds a single PDF upload.
const MaxUploadSize = 32 << 20

// Handler handles ingestion API requests
type Handler struct {
	sessions *service.SessionService
}

// NewHandler creates a new ingest handler
func NewHandler(sessions *service.SessionService) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers ingestion routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/:session_id/documents", h.UploadPDF)
	r.POST("/:session_id/links", h.AddLink)
	r.POST("/:session_id/youtube", h.AddYouTube)
}

// UploadPDF ingests an uploaded PDF file
func (h *Handler) UploadPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}
	filename := filepath.Base(file.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF uploads are supported"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	resp, err := h.sessions.IngestPDF(c.Request.Context(), c.Param("session_id"), filename, src)
	if err != nil {
		status(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddLink ingests a web link
func (h *Handler) AddLink(c *gin.Context) {
	var req domain.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.sessions.IngestLink(c.Request.Context(), c.Param("session_id"), req.URL)
	if err != nil {
		status(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddYouTube ingests a YouTube link
func (h *Handler) AddYouTube(c *gin.Context) {
	var req domain.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.sessions.IngestYouTube(c.Request.Context(), c.Param("session_id"), req.URL)
	if err != nil {
		status(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
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
