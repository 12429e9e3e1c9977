package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
)

// claudeClient generates completions via the Anthropic Messages API
type claudeClient struct {
	client      anthropic.Client
	maxTokens   int
	temperature float32
	logger      arbor.ILogger
}

func newClaudeClient(cfg *common.ClaudeConfig, logger arbor.ILogger) (*claudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	logger.Debug().
		Str("model", cfg.Model).
		Int("max_tokens", maxTokens).
		Float32("temperature", cfg.Temperature).
		Msg("Claude client initialized")

	return &claudeClient{
		client:      client,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

func (c *claudeClient) generate(ctx context.Context, model, system, prompt string) (string, tokenUsage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", tokenUsage{}, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", tokenUsage{}, fmt.Errorf("no response generated from Claude API")
	}

	usage := tokenUsage{
		inputTokens:  resp.Usage.InputTokens,
		outputTokens: resp.Usage.OutputTokens,
	}
	return text.String(), usage, nil
}
