// -----------------------------------------------------------------------
// Content generator - routes generation requests to cloud LLM providers
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/models"
)

const defaultSystemPrompt = "You are a professional long-form writer. Respond in well-structured markdown only, with no preamble."

const metadataPrompt = `Produce publication metadata for the blog post below.
Respond with a single JSON object and nothing else, in this exact shape:
{"title": "...", "description": "...", "tags": ["...", "..."]}
The description must be under 160 characters. Provide 3 to 6 tags.

Post:
`

// providerClient is the minimal call surface shared by the cloud backends
type providerClient interface {
	generate(ctx context.Context, model, system, prompt string) (string, tokenUsage, error)
}

// Generator implements content and metadata generation over the configured
// cloud providers. Model routing is table-driven: a request either names a
// model from the accepted set or falls back to the default provider's
// configured model.
type Generator struct {
	clients      map[Provider]providerClient
	defaults     map[Provider]string
	defaultModel string
	retry        *RetryConfig
	logger       arbor.ILogger
}

// NewGenerator builds provider clients from configuration. A provider
// without an API key is skipped; requests routed to it fail with a clear
// error instead of failing at startup.
func NewGenerator(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*Generator, error) {
	g := &Generator{
		clients: make(map[Provider]providerClient),
		defaults: map[Provider]string{
			ProviderGemini: cfg.Gemini.Model,
			ProviderClaude: cfg.Claude.Model,
		},
		retry:  NewDefaultRetryConfig(),
		logger: logger,
	}

	if cfg.Gemini.APIKey != "" {
		client, err := newGeminiClient(ctx, &cfg.Gemini, logger)
		if err != nil {
			return nil, err
		}
		g.clients[ProviderGemini] = client
	}
	if cfg.Claude.APIKey != "" {
		client, err := newClaudeClient(&cfg.Claude, logger)
		if err != nil {
			return nil, err
		}
		g.clients[ProviderClaude] = client
	}
	if len(g.clients) == 0 {
		return nil, fmt.Errorf("no LLM provider configured: set GEMINI_API_KEY or ANTHROPIC_API_KEY")
	}

	defaultProvider := Provider(cfg.LLM.DefaultProvider)
	if defaultProvider != ProviderGemini && defaultProvider != ProviderClaude {
		return nil, fmt.Errorf("invalid default provider %q: must be %q or %q", cfg.LLM.DefaultProvider, ProviderGemini, ProviderClaude)
	}
	if _, ok := g.clients[defaultProvider]; !ok {
		// Fall through to whichever provider has a key
		for p := range g.clients {
			defaultProvider = p
		}
	}
	g.defaultModel = g.defaults[defaultProvider]

	logger.Info().
		Str("default_model", g.defaultModel).
		Int("providers", len(g.clients)).
		Msg("LLM generator initialized")

	return g, nil
}

// resolve maps a request's model field to a concrete model spec. Accepted
// values are the provider shorthands ("gemini", "claude"), a model id from
// the accepted set, or empty for the default.
func (g *Generator) resolve(selector string) (string, modelSpec, error) {
	switch selector {
	case "":
		selector = g.defaultModel
	case string(ProviderGemini):
		selector = g.defaults[ProviderGemini]
	case string(ProviderClaude):
		selector = g.defaults[ProviderClaude]
	}

	spec, ok := modelTable[selector]
	if !ok {
		return "", modelSpec{}, fmt.Errorf("unknown model %q (supported: %s)", selector, strings.Join(SupportedModels(), ", "))
	}
	if _, ok := g.clients[spec.provider]; !ok {
		return "", modelSpec{}, fmt.Errorf("model %q requires the %s provider, which has no API key configured", selector, spec.provider)
	}
	return selector, spec, nil
}

// GeneratePost produces the primary markdown content for a submission
func (g *Generator) GeneratePost(ctx context.Context, req interfaces.PostRequest) (*interfaces.GeneratedContent, error) {
	model, spec, err := g.resolve(req.Model)
	if err != nil {
		return nil, err
	}

	system := req.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	text, usage, err := g.generateWithRetry(ctx, spec.provider, model, system, req.Prompt)
	if err != nil {
		return nil, err
	}

	return &interfaces.GeneratedContent{
		Markdown: text,
		Provider: string(spec.provider),
		Model:    model,
		Cost:     usage.cost(spec),
	}, nil
}

// GenerateMetadata derives title, description and tags from a generated post
func (g *Generator) GenerateMetadata(ctx context.Context, postMarkdown, modelSelector string) (*models.PostMetadata, float64, error) {
	model, spec, err := g.resolve(modelSelector)
	if err != nil {
		return nil, 0, err
	}

	text, usage, err := g.generateWithRetry(ctx, spec.provider, model, "", metadataPrompt+postMarkdown)
	if err != nil {
		return nil, 0, err
	}

	meta, err := parseMetadata(text)
	if err != nil {
		return nil, usage.cost(spec), fmt.Errorf("failed to parse metadata response: %w", err)
	}
	return meta, usage.cost(spec), nil
}

// generateWithRetry runs one provider call with rate-limit aware backoff
func (g *Generator) generateWithRetry(ctx context.Context, provider Provider, model, system, prompt string) (string, tokenUsage, error) {
	client := g.clients[provider]

	var lastErr error
	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		text, usage, err := client.generate(ctx, model, system, prompt)
		if err == nil {
			return text, usage, nil
		}
		lastErr = err

		if !IsRateLimitError(err) || attempt == g.retry.MaxRetries {
			break
		}

		backoff := g.retry.CalculateBackoff(attempt, ExtractRetryDelay(err))
		g.logger.Warn().
			Str("model", model).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Provider rate limited, backing off")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", tokenUsage{}, ctx.Err()
		}
	}
	return "", tokenUsage{}, lastErr
}

// parseMetadata extracts the JSON object from a metadata response, tolerating
// markdown code fences around it.
func parseMetadata(text string) (*models.PostMetadata, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var meta models.PostMetadata
	if err := json.Unmarshal([]byte(text[start:end+1]), &meta); err != nil {
		return nil, err
	}
	if strings.TrimSpace(meta.Title) == "" {
		return nil, fmt.Errorf("metadata missing title")
	}
	return &meta, nil
}
