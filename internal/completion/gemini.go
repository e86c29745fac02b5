package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.0-flash"
	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 30 * time.Second
)

// generator is the subset of the genai models API used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini completion service.
type GeminiConfig struct {
	Model   string
	Timeout time.Duration
	Keys    KeySource
	Logger  *slog.Logger
}

// Gemini implements Service with the Google Gen AI SDK against the Gemini API.
type Gemini struct {
	model   string
	timeout time.Duration
	keys    KeySource
	logger  *slog.Logger

	newGenerator func(ctx context.Context, apiKey string) (generator, error)

	mu        sync.Mutex
	clientKey string
	client    generator
}

// NewGemini creates a Gemini service. Clients are created lazily per API key, so a
// key saved from settings takes effect on the next query.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.Keys == nil {
		return nil, errors.New("gemini: key source is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		model:        cfg.Model,
		timeout:      cfg.Timeout,
		keys:         cfg.Keys,
		logger:       cfg.Logger,
		newGenerator: newGenAIGenerator,
	}, nil
}

func newGenAIGenerator(ctx context.Context, apiKey string) (generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client.Models, nil
}

func (g *Gemini) generatorFor(ctx context.Context, apiKey string) (generator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil && g.clientKey == apiKey {
		return g.client, nil
	}
	gen, err := g.newGenerator(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	g.client = gen
	g.clientKey = apiKey
	return gen, nil
}

// Complete sends the prompt for req to Gemini. Only ErrMissingCredential is
// returned as an error.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	apiKey, err := g.keys.APIKey(ctx)
	if err != nil {
		return "", err
	}

	gen, err := g.generatorFor(ctx, apiKey)
	if err != nil {
		g.logger.Error("Completion client unavailable", "error", err)
		return TransportErrorReply, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(BuildPrompt(req), genai.RoleUser),
	}
	start := time.Now()
	resp, err := gen.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.logger.Error("Completion request failed",
			"model", g.model,
			"duration", time.Since(start),
			"timeout", errors.Is(ctx.Err(), context.DeadlineExceeded),
			"error", err,
		)
		return TransportErrorReply, nil
	}

	text := responseText(resp)
	if text == "" {
		g.logger.Warn("Completion returned no candidates", "model", g.model)
		return NoResponseReply, nil
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
