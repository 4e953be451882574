// Package service implements the conversation controller: it owns the
// transcript, routes prompts through the response cache and the streaming
// bridge, and reports ingestion outcomes as transcript turns.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/seyyidi/ravenchat/internal/bridge"
	"github.com/seyyidi/ravenchat/internal/cache"
	"github.com/seyyidi/ravenchat/internal/citation"
	"github.com/seyyidi/ravenchat/internal/config"
	"github.com/seyyidi/ravenchat/internal/domain"
	"github.com/seyyidi/ravenchat/internal/repository"
)

// Greeting is the assistant turn opening every new session.
const Greeting = "Hey there! I'm Raven. I'm great at answering questions about " +
	"PDF docs, website links and YouTube links. Drop your PDFs or links here " +
	"and let's chat! Even without one, we can still chat about anything. " +
	"Go ahead, ask me anything!"

// KnowledgeBase is the external collaborator holding the vector knowledge
// base: it ingests sources and answers prompts with citations, streaming
// token deltas through emit while the blocking call runs.
type KnowledgeBase interface {
	AddFile(ctx context.Context, path, name string) error
	AddLink(ctx context.Context, url string) error
	AddYouTube(ctx context.Context, url string) error
	Chat(ctx context.Context, prompt string, emit func(token string) error) (*domain.ChatResult, error)
}

// sessionState holds per-session in-process state: the set of already added
// file names and the lock serializing chat and ingestion. Invocations are
// never pipelined within one session.
type sessionState struct {
	mu       sync.Mutex
	ingested map[string]bool
}

// SessionService is the conversation controller for all sessions in the
// process. The response cache is shared across sessions and injected.
type SessionService struct {
	cfg    *config.Config
	repo   *repository.SessionRepository
	kb     KnowledgeBase
	cache  *cache.ResponseCache
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]*sessionState
}

// NewSessionService creates the conversation controller.
func NewSessionService(
	cfg *config.Config,
	repo *repository.SessionRepository,
	kb KnowledgeBase,
	responseCache *cache.ResponseCache,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		cfg:    cfg,
		repo:   repo,
		kb:     kb,
		cache:  responseCache,
		logger: logger,
		states: make(map[string]*sessionState),
	}
}

// CreateSession starts a new conversation with the greeting turn.
func (s *SessionService) CreateSession() (*domain.Session, error) {
	session := &domain.Session{}
	if err := s.repo.Create(session); err != nil {
		return nil, err
	}

	greeting := &domain.Message{
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   Greeting,
	}
	if err := s.repo.CreateMessage(greeting); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.states[session.ID] = &sessionState{ingested: make(map[string]bool)}
	s.mu.Unlock()

	return session, nil
}

// Messages returns the session transcript in turn order.
func (s *SessionService) Messages(sessionID string) ([]*domain.Message, error) {
	session, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetMessages(sessionID)
}

// Submit appends the user turn, answers from the cache when the prompt was
// seen recently, and otherwise runs the streaming bridge, re-rendering the
// reply through render after every token. The final text, with the citation
// block appended, becomes the assistant turn and the cached value for the
// prompt. Note on the cache policy: the stored text includes the sources
// block, so cache hits replay the reply exactly as first rendered.
func (s *SessionService) Submit(ctx context.Context, sessionID, prompt string, render func(domain.StreamChunk)) (*domain.ChatResponse, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("empty prompt: %w", domain.ErrInvalidRequest)
	}
	state, err := s.state(sessionID)
	if err != nil {
		return nil, err
	}
	if !state.mu.TryLock() {
		return nil, domain.ErrSessionBusy
	}
	defer state.mu.Unlock()

	userMsg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   prompt,
	}
	if err := s.repo.CreateMessage(userMsg); err != nil {
		return nil, err
	}

	if answer, ok := s.cache.Lookup(prompt); ok {
		if err := s.appendAssistant(sessionID, answer, nil); err != nil {
			return nil, err
		}
		if render != nil {
			render(domain.StreamChunk{Type: "content", Content: answer})
		}
		return &domain.ChatResponse{
			SessionID: sessionID,
			Answer:    answer,
			Cached:    true,
		}, nil
	}

	inv := bridge.Start(ctx, prompt, bridge.ChatterFunc(s.kb.Chat))

	var streamed strings.Builder
	for token := range inv.Tokens() {
		streamed.WriteString(token)
		if render != nil {
			render(domain.StreamChunk{Type: "content", Content: token})
		}
	}
	result, err := inv.Wait()
	if err != nil {
		// The failure becomes a visible assistant turn; the session lives on.
		s.logger.Error("chat invocation failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		failure := fmt.Sprintf("Error from model: %v", err)
		if aerr := s.appendAssistant(sessionID, failure, nil); aerr != nil {
			return nil, aerr
		}
		if render != nil {
			render(domain.StreamChunk{Type: "error", Content: failure})
		}
		return &domain.ChatResponse{SessionID: sessionID, Answer: failure}, nil
	}

	// The streamed accumulation and the returned answer are not guaranteed
	// identical; prefer what the user already watched arrive.
	answer := streamed.String()
	if answer == "" {
		answer = result.Answer
	}

	sources := citation.FormatSources(result.Citations)
	if sources != "" && render != nil {
		render(domain.StreamChunk{Type: "sources", Content: sources})
	}
	full := answer + sources

	if err := s.appendAssistant(sessionID, full, result.Citations); err != nil {
		return nil, err
	}

	s.cache.Insert(prompt, full)

	return &domain.ChatResponse{
		SessionID: sessionID,
		Answer:    full,
		Citations: result.Citations,
	}, nil
}

// Reset clears the transcript. The response cache and the set of already
// ingested file names stay untouched, as does the knowledge base itself.
func (s *SessionService) Reset(sessionID string) error {
	state, err := s.state(sessionID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	return s.repo.DeleteMessages(sessionID)
}

// IngestPDF copies the uploaded bytes to a uniquely named temporary file for
// the duration of the add, then removes it. A file name already added in
// this session is skipped without a second add or transcript turn.
func (s *SessionService) IngestPDF(ctx context.Context, sessionID, filename string, content io.Reader) (*domain.IngestResponse, error) {
	state, err := s.state(sessionID)
	if err != nil {
		return nil, err
	}
	if !state.mu.TryLock() {
		return nil, domain.ErrSessionBusy
	}
	defer state.mu.Unlock()

	if state.ingested[filename] {
		return &domain.IngestResponse{
			Message: fmt.Sprintf("%s is already in the knowledge base", filename),
			Added:   false,
		}, nil
	}

	tmp, err := os.CreateTemp("", "ravenchat-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	if err := s.kb.AddFile(ctx, tmp.Name(), filename); err != nil {
		return s.ingestFailed(sessionID, &domain.IngestError{
			Kind: domain.IngestKindPDF,
			Item: filename,
			Err:  err,
		})
	}

	state.ingested[filename] = true
	message := fmt.Sprintf("Added %s to knowledge base!", filename)
	return s.ingestSucceeded(sessionID, message)
}

// IngestLink adds a web link to the knowledge base.
func (s *SessionService) IngestLink(ctx context.Context, sessionID, url string) (*domain.IngestResponse, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("empty url: %w", domain.ErrInvalidRequest)
	}
	state, err := s.state(sessionID)
	if err != nil {
		return nil, err
	}
	if !state.mu.TryLock() {
		return nil, domain.ErrSessionBusy
	}
	defer state.mu.Unlock()

	if err := s.kb.AddLink(ctx, url); err != nil {
		return s.ingestFailed(sessionID, &domain.IngestError{
			Kind: domain.IngestKindLink,
			Item: url,
			Err:  err,
		})
	}
	return s.ingestSucceeded(sessionID, fmt.Sprintf("Added %s to knowledge base!", url))
}

// IngestYouTube adds a YouTube link to the knowledge base.
func (s *SessionService) IngestYouTube(ctx context.Context, sessionID, url string) (*domain.IngestResponse, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("empty url: %w", domain.ErrInvalidRequest)
	}
	state, err := s.state(sessionID)
	if err != nil {
		return nil, err
	}
	if !state.mu.TryLock() {
		return nil, domain.ErrSessionBusy
	}
	defer state.mu.Unlock()

	if err := s.kb.AddYouTube(ctx, url); err != nil {
		return s.ingestFailed(sessionID, &domain.IngestError{
			Kind: domain.IngestKindYouTube,
			Item: url,
			Err:  err,
		})
	}
	return s.ingestSucceeded(sessionID, fmt.Sprintf("Added YouTube link %s to knowledge base!", url))
}

func (s *SessionService) ingestSucceeded(sessionID, message string) (*domain.IngestResponse, error) {
	if err := s.appendAssistant(sessionID, message, nil); err != nil {
		return nil, err
	}
	return &domain.IngestResponse{Message: message, Added: true}, nil
}

// ingestFailed records the failure as an informational turn. The item is not
// marked as added, so the same source can be retried.
func (s *SessionService) ingestFailed(sessionID string, ierr *domain.IngestError) (*domain.IngestResponse, error) {
	s.logger.Warn("ingestion failed",
		zap.String("session_id", sessionID),
		zap.String("kind", ierr.Kind),
		zap.String("item", ierr.Item),
		zap.Error(ierr.Err),
	)
	if err := s.appendAssistant(sessionID, ierr.Error(), nil); err != nil {
		return nil, err
	}
	return &domain.IngestResponse{Message: ierr.Error(), Added: false}, nil
}

func (s *SessionService) appendAssistant(sessionID, content string, citations []domain.Citation) error {
	msg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   content,
		Citations: citations,
	}
	if err := s.repo.CreateMessage(msg); err != nil {
		return err
	}
	return s.repo.Touch(sessionID)
}

// state returns the in-process state for a session, materializing it for
// sessions created before this process restart.
func (s *SessionService) state(sessionID string) (*sessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[sessionID]; ok {
		return st, nil
	}
	session, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	st := &sessionState{ingested: make(map[string]bool)}
	s.states[sessionID] = st
	return st, nil
}
