//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/doubt-solver/internal/completion"
	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/history"
	"github.com/ashureev/doubt-solver/internal/identity"
	"github.com/ashureev/doubt-solver/internal/metrics"
	"github.com/ashureev/doubt-solver/internal/problem"
	"github.com/ashureev/doubt-solver/internal/session"
	"github.com/ashureev/doubt-solver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "chat is not open")

	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Expected JSON content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"error":"chat is not open"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

type stubCompleter struct {
	mu    sync.Mutex
	reply string
}

func (s *stubCompleter) Complete(context.Context, completion.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply, nil
}

type testEnv struct {
	kv      *store.MemoryStore
	history *history.Store
	llm     *stubCompleter
	manager *session.Manager
	hub     *Hub
	router  http.Handler
}

func newTestEnv(t *testing.T, keys completion.StoredKey, limiter *RateLimiter) *testEnv {
	t.Helper()

	kv := store.NewMemory()
	if keys.KV == nil {
		keys.KV = kv
	}
	env := &testEnv{
		kv:      kv,
		history: history.New(kv, nil),
		llm:     &stubCompleter{reply: "Use a hash map for O(n) lookup."},
		hub:     NewHub([]string{"*"}, nil),
	}
	tracker := problem.NewTracker()
	m := metrics.New()
	env.manager = session.NewManager(tracker, env.hub, session.Deps{
		History:   env.history,
		Completer: env.llm,
		Keys:      keys,
		Metrics:   m,
		Location:  time.UTC,
	})

	h, err := NewHandler(HandlerConfig{
		Sessions: env.manager,
		Tracker:  tracker,
		History:  env.history,
		Keys:     keys,
		Limiter:  limiter,
	})
	require.NoError(t, err)
	env.router = NewRouter(h, env.hub, RouterConfig{AllowedOrigins: []string{"*"}, Metrics: m})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, surfaceID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if surfaceID != "" {
		req.Header.Set(identity.SurfaceHeaderName, surfaceID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChatFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, nil)

	rec := env.do(t, http.MethodPost, "/api/problem", "s1", map[string]string{
		"id":        "Two Sum",
		"statement": "Given nums and target...",
		"userCode":  "func twoSum() {}",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat/query", "s1", map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat/open", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	opened := decodeBody[transcriptResponse](t, rec)
	assert.Equal(t, domain.SessionID("Two Sum"), opened.SessionID)
	assert.Equal(t, domain.StateOpen, opened.State)
	require.Len(t, opened.Transcript, 1)
	assert.Equal(t, session.GreetingText, opened.Transcript[0].Content)

	rec = env.do(t, http.MethodPost, "/api/chat/query", "s1", map[string]string{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat/query", "s1", map[string]string{"query": "How do I start?"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decodeBody[session.Reply](t, rec)
	assert.True(t, reply.Persisted)
	assert.Equal(t, "Use a hash map for O(n) lookup.", reply.Text)

	rec = env.do(t, http.MethodGet, "/api/chat/history", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decodeBody[transcriptResponse](t, rec)
	assert.Len(t, hist.Transcript, 3)

	rec = env.do(t, http.MethodGet, "/api/chat/export", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=AI_Doubt_Solver_Two_Sum.txt`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "# AI Doubt Solver Chat - Two Sum")
	assert.Contains(t, rec.Body.String(), "You: How do I start?")

	rec = env.do(t, http.MethodPost, "/api/chat/clear", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := decodeBody[transcriptResponse](t, rec)
	require.Len(t, cleared.Transcript, 1)
	assert.Equal(t, session.ClearedText, cleared.Transcript[0].Content)

	rec = env.do(t, http.MethodGet, "/api/sessions", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions struct {
		Sessions []history.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, 1, sessions.Sessions[0].MessageCount)

	rec = env.do(t, http.MethodPost, "/api/chat/close", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"CLOSED"`)
}

func TestProblemChangeClosesSurface(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, nil)

	env.do(t, http.MethodPost, "/api/problem", "s1", map[string]string{"id": "Two Sum"})
	rec := env.do(t, http.MethodPost, "/api/chat/open", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/problem", "s1", map[string]string{"id": "Three Sum"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"CLOSED"`)
	assert.Contains(t, rec.Body.String(), `"session_id":"Three Sum"`)

	rec = env.do(t, http.MethodPost, "/api/chat/query", "s1", map[string]string{"query": "hint?"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSurfacesAreIndependent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, nil)

	env.do(t, http.MethodPost, "/api/problem", "s1", map[string]string{"id": "Two Sum"})
	env.do(t, http.MethodPost, "/api/problem", "s2", map[string]string{"id": "Three Sum"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/chat/open", "s1", nil).Code)

	rec := env.do(t, http.MethodPost, "/api/chat/query", "s2", map[string]string{"query": "hint?"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOpenWithoutKeyAndSettings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{}, nil)

	rec := env.do(t, http.MethodGet, "/api/config", "s1", nil)
	assert.JSONEq(t, `{"has_api_key":false}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/chat/open", "s1", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), completion.MissingKeyReply)

	rec = env.do(t, http.MethodPut, "/api/settings/api-key", "s1", map[string]string{"api_key": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/settings/api-key", "s1", map[string]string{"api_key": "AIza-test"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/config", "s1", nil)
	assert.JSONEq(t, `{"has_api_key":true}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/chat/open", "s1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryRateLimited(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, NewRateLimiter(1, time.Hour))

	env.do(t, http.MethodPost, "/api/problem", "s1", map[string]string{"id": "Two Sum"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/chat/open", "s1", nil).Code)

	rec := env.do(t, http.MethodPost, "/api/chat/query", "s1", map[string]string{"query": "hint?"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/chat/query", "s1", map[string]string{"query": "hint?"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestInvalidBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/problem", strings.NewReader("{not json"))
	req.Header.Set(identity.SurfaceHeaderName, "s1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, nil)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doubtsolver_open_surfaces")
}

func TestSurfaceIDEchoed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, completion.StoredKey{Fallback: "key"}, nil)

	rec := env.do(t, http.MethodGet, "/api/chat/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	minted := rec.Header().Get(identity.SurfaceHeaderName)
	assert.NotEmpty(t, minted)

	snap := decodeBody[domain.SurfaceSnapshot](t, rec)
	assert.Equal(t, minted, snap.SurfaceID)
	assert.Equal(t, domain.StateClosed, snap.State)
}

func TestNewHandlerRequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := NewHandler(HandlerConfig{})
	assert.Error(t, err)
}
