package completion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/doubt-solver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	block  bool
	model  string
	prompt string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: string(genai.RoleModel)}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func newTestGemini(t *testing.T, gen *fakeGenerator, keys KeySource, timeout time.Duration) *Gemini {
	t.Helper()
	g, err := NewGemini(GeminiConfig{Keys: keys, Timeout: timeout})
	require.NoError(t, err)
	g.newGenerator = func(context.Context, string) (generator, error) { return gen, nil }
	return g
}

func TestGeminiReturnsCandidateText(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Use a hash map ", "for O(n) lookup.")}
	g := newTestGemini(t, gen, StoredKey{Fallback: "k"}, time.Second)

	reply, err := g.Complete(context.Background(), Request{Query: "How to solve?", ProblemStatement: "Two Sum"})
	require.NoError(t, err)
	assert.Equal(t, "Use a hash map for O(n) lookup.", reply)
	assert.Equal(t, DefaultModel, gen.model)
	assert.Contains(t, gen.prompt, "User's query: How to solve?")
}

func TestGeminiNoCandidates(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	g := newTestGemini(t, gen, StoredKey{Fallback: "k"}, time.Second)

	reply, err := g.Complete(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, NoResponseReply, reply)
}

func TestGeminiTransportErrorFoldsIntoReply(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("Error 503: unavailable")}
	g := newTestGemini(t, gen, StoredKey{Fallback: "k"}, time.Second)

	reply, err := g.Complete(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, TransportErrorReply, reply)
}

func TestGeminiTimeoutFoldsIntoReply(t *testing.T) {
	gen := &fakeGenerator{block: true}
	g := newTestGemini(t, gen, StoredKey{Fallback: "k"}, 20*time.Millisecond)

	reply, err := g.Complete(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, TransportErrorReply, reply)
}

func TestGeminiMissingKey(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("unused")}
	g := newTestGemini(t, gen, StoredKey{KV: store.NewMemory()}, time.Second)

	_, err := g.Complete(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Empty(t, gen.model, "no request should be made without a key")
}

func TestGeminiRequiresKeySource(t *testing.T) {
	_, err := NewGemini(GeminiConfig{})
	require.Error(t, err)
}

func TestStoredKeyPrefersStoreOverFallback(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	keys := StoredKey{KV: kv, Fallback: "env-key"}

	got, err := keys.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", got)

	require.NoError(t, keys.SetAPIKey(ctx, "  saved-key "))
	got, err = keys.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "saved-key", got)

	require.Error(t, keys.SetAPIKey(ctx, "   "))
}

func TestHasCredential(t *testing.T) {
	ctx := context.Background()
	assert.False(t, HasCredential(ctx, StoredKey{KV: store.NewMemory()}))
	assert.True(t, HasCredential(ctx, StoredKey{Fallback: "k"}))
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(Request{
		Query:            "Can you write code for this?",
		ProblemStatement: "Given nums and target...",
		UserCode:         "func twoSum() {}",
		PriorContext:     "User: hi\nAI: hello",
	})

	assert.Contains(t, prompt, "Here is the problem statement:\nGiven nums and target...")
	assert.Contains(t, prompt, "User's current code:\n```\nfunc twoSum() {}\n```")
	assert.Contains(t, prompt, "Previous conversation context:\nUser: hi\nAI: hello")
	assert.Contains(t, prompt, "The user is asking for code.")
	assert.True(t, strings.Index(prompt, "User's query:") > strings.Index(prompt, "Previous conversation context:"))
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	prompt := BuildPrompt(Request{Query: "What is the big o here?", ProblemStatement: "p"})

	assert.NotContains(t, prompt, "User's current code")
	assert.NotContains(t, prompt, "Previous conversation context")
	assert.Contains(t, prompt, "time and space complexity step by step")
}
