// Package oracle is the client of the generative-text service.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ubuygold/gotarot/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// textModel is one configured model bound to one API key.
type textModel interface {
	generate(ctx context.Context, prompt string) (string, error)
}

type genaiModel struct {
	model *genai.GenerativeModel
}

func (m genaiModel) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := m.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// Gemini generates text with Google's Gemini API, rotating over the configured keys.
type Gemini struct {
	pool      *keyPool
	modelName string
	logger    *slog.Logger

	mu       sync.Mutex
	clients  map[string]*genai.Client
	models   map[string]textModel
	newModel func(ctx context.Context, key string) (textModel, *genai.Client, error)
}

// NewGemini builds the client. It performs no network calls; clients are
// created on first use of each key.
func NewGemini(cfg config.GeminiConfig, logger *slog.Logger) *Gemini {
	g := &Gemini{
		pool:      newKeyPool(cfg.APIKeys, cfg.KeyCooldown),
		modelName: cfg.Model,
		logger:    logger.With("component", "oracle"),
		clients:   make(map[string]*genai.Client),
		models:    make(map[string]textModel),
	}
	g.newModel = g.dial
	if len(cfg.APIKeys) == 0 {
		g.logger.Warn("No Gemini API keys configured. Readings will return 503 until a key is added.")
	}
	return g
}

func (g *Gemini) dial(ctx context.Context, key string) (textModel, *genai.Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return genaiModel{model: client.GenerativeModel(g.modelName)}, client, nil
}

// Configured reports whether at least one API key is available.
func (g *Gemini) Configured() bool {
	return g.pool.size() > 0
}

func (g *Gemini) modelFor(ctx context.Context, key string) (textModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.models[key]; ok {
		return m, nil
	}
	m, client, err := g.newModel(ctx, key)
	if err != nil {
		return nil, err
	}
	g.models[key] = m
	if client != nil {
		g.clients[key] = client
	}
	return m, nil
}

// Generate sends prompt with the next available key. A key that fails for a
// reason other than the caller's context is put on cooldown.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	key, err := g.pool.acquire()
	if err != nil {
		return "", err
	}
	m, err := g.modelFor(ctx, key)
	if err != nil {
		return "", err
	}
	text, err := m.generate(ctx, prompt)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			g.pool.markFailure(key)
			g.logger.Warn("Gemini request failed, cooling key down", "key_suffix", safeKeySuffix(key), "error", err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	g.pool.markSuccess(key)
	g.logger.Debug("Gemini request succeeded", "key_suffix", safeKeySuffix(key), "chars", len(text))
	return text, nil
}

// Close releases the underlying gRPC clients.
func (g *Gemini) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, client := range g.clients {
		if err := client.Close(); err != nil {
			g.logger.Warn("Failed to close gemini client", "key_suffix", safeKeySuffix(key), "error", err)
		}
	}
	g.clients = make(map[string]*genai.Client)
	g.models = make(map[string]textModel)
	g.logger.Info("Gemini client shutdown complete.")
}
