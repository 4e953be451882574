package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seyyidi/ravenchat/internal/cache"
	"github.com/seyyidi/ravenchat/internal/config"
	"github.com/seyyidi/ravenchat/internal/domain"
	"github.com/seyyidi/ravenchat/internal/repository"
	"github.com/seyyidi/ravenchat/internal/service"
)

type fakeKB struct {
	tokens    []string
	citations []domain.Citation
}

func (f *fakeKB) AddFile(ctx context.Context, path, name string) error { return nil }
func (f *fakeKB) AddLink(ctx context.Context, url string) error        { return nil }
func (f *fakeKB) AddYouTube(ctx context.Context, url string) error     { return nil }

func (f *fakeKB) Chat(ctx context.Context, prompt string, emit func(string) error) (*domain.ChatResult, error) {
	var answer strings.Builder
	for _, tok := range f.tokens {
		answer.WriteString(tok)
		if err := emit(tok); err != nil {
			return nil, err
		}
	}
	return &domain.ChatResult{Answer: answer.String(), Citations: f.citations}, nil
}

func newTestRouter(t *testing.T, kb service.KnowledgeBase) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := service.NewSessionService(
		&config.Config{},
		repository.NewSessionRepository(db),
		kb,
		cache.New(100, 300*time.Second),
		zap.NewNop(),
	)

	r := gin.New()
	NewHandler(sessions).RegisterRoutes(r.Group("/api/sessions"))
	return r
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var session domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	require.NotEmpty(t, session.ID)
	return session.ID
}

func TestCreateSessionAndGreeting(t *testing.T) {
	r := newTestRouter(t, &fakeKB{})
	id := createSession(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, body.Messages[0].Role)
}

func TestChatReturnsAnswerWithSources(t *testing.T) {
	kb := &fakeKB{
		tokens:    []string{"Hello ", "there."},
		citations: []domain.Citation{{URL: "docs/guide.chunk1.pdf"}},
	}
	r := newTestRouter(t, kb)
	id := createSession(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/chat",
		strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Answer, "Hello there."))
	assert.Contains(t, resp.Answer, "- guide.pdf")
}

// liveRecorder is a ResponseRecorder whose CloseNotify channel never fires,
// standing in for a client that stays connected for the whole stream.
type liveRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newLiveRecorder() *liveRecorder {
	return &liveRecorder{httptest.NewRecorder(), make(chan bool)}
}

func (r *liveRecorder) CloseNotify() <-chan bool { return r.closed }

func TestChatStreamEmitsContentThenDone(t *testing.T) {
	kb := &fakeKB{tokens: []string{"a", "b", "c"}}
	r := newTestRouter(t, kb)
	id := createSession(t, r)

	w := newLiveRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/chat/stream",
		strings.NewReader(`{"message":"spell abc"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	var types []string
	var content strings.Builder
	for _, frame := range strings.Split(w.Body.String(), "\n\n") {
		for _, line := range strings.Split(frame, "\n") {
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var chunk domain.StreamChunk
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk))
			types = append(types, chunk.Type)
			if chunk.Type == "content" {
				content.WriteString(chunk.Content)
			}
		}
	}

	assert.Equal(t, "abc", content.String())
	require.NotEmpty(t, types)
	assert.Equal(t, "done", types[len(types)-1])
}

// goneRecorder is a ResponseRecorder whose CloseNotify channel has already
// fired, standing in for a client that disconnected before reading a frame.
type goneRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newGoneRecorder() *goneRecorder {
	r := &goneRecorder{httptest.NewRecorder(), make(chan bool, 1)}
	r.closed <- true
	return r
}

func (r *goneRecorder) CloseNotify() <-chan bool { return r.closed }

func TestChatStreamClientGoneReleasesSession(t *testing.T) {
	// Enough tokens to overrun both the bridge buffer and the relay channel
	// with nobody reading.
	tokens := make([]string, 200)
	for i := range tokens {
		tokens[i] = "t"
	}
	r := newTestRouter(t, &fakeKB{tokens: tokens})
	id := createSession(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/chat/stream",
		strings.NewReader(`{"message":"long one"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(newGoneRecorder(), req)

	chat := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/chat",
			strings.NewReader(`{"message":"follow-up"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	// The abandoned invocation holds the session lock while it runs.
	require.Eventually(t, func() bool { return chat() == http.StatusConflict },
		2*time.Second, 5*time.Millisecond)

	// Disconnect reaches the worker as context cancellation; the session
	// must come back instead of answering 409 for the rest of the process.
	cancel()
	require.Eventually(t, func() bool { return chat() == http.StatusOK },
		2*time.Second, 5*time.Millisecond)
}

func TestChatUnknownSession(t *testing.T) {
	r := newTestRouter(t, &fakeKB{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/missing/chat",
		strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatRejectsEmptyBody(t *testing.T) {
	r := newTestRouter(t, &fakeKB{})
	id := createSession(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/chat",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetClearsTranscript(t *testing.T) {
	r := newTestRouter(t, &fakeKB{tokens: []string{"x"}})
	id := createSession(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Messages)
}
