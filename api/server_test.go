package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nviv/nviv/internal/log"
)

// stubChat records turns and returns a fixed reply.
type stubChat struct {
	mu     sync.Mutex
	reply  string
	turns  []turn
	resets []string
}

type turn struct {
	message  string
	threadID string
}

func (s *stubChat) Chat(_ context.Context, message, threadID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn{message: message, threadID: threadID})
	return s.reply
}

func (s *stubChat) ResetHistory(_ context.Context, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, threadID)
}

func (s *stubChat) lastTurn(t *testing.T) turn {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.turns)
	return s.turns[len(s.turns)-1]
}

// stubTranscriber returns fixed text for any audio.
type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(context.Context, []byte, string, string) (string, error) {
	return s.text, s.err
}

func newTestServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return NewServer(cfg)
}

func TestHealth(t *testing.T) {
	s := newTestServer(ServerConfig{Chat: &stubChat{}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(ServerConfig{Chat: &stubChat{}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/chat", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := log.NewNop()
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := chain(panicky, recoveryMiddleware(logger), loggingMiddleware(logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	chat := &stubChat{reply: "hello back"}
	s := newTestServer(ServerConfig{Chat: chat})

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"hello back"}`, rec.Body.String())

	got := chat.lastTurn(t)
	assert.Equal(t, "hello", got.message)
	assert.Equal(t, defaultWebSession, got.threadID)
	assert.Empty(t, chat.resets)
}

func TestChatEndpointSessionAndReset(t *testing.T) {
	chat := &stubChat{reply: "fresh start"}
	s := newTestServer(ServerConfig{Chat: chat})

	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"hi","session_id":"user-7","reset":true}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user-7"}, chat.resets)
	assert.Equal(t, "user-7", chat.lastTurn(t).threadID)
}

func TestChatEndpointValidation(t *testing.T) {
	s := newTestServer(ServerConfig{Chat: &stubChat{}})

	for name, body := range map[string]string{
		"malformed json": `{not json`,
		"empty message":  `{"message":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
