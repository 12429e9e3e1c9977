package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/penmanapp/penman/internal/common"
)

// geminiClient generates completions via the Google Gemini API
type geminiClient struct {
	client      *genai.Client
	temperature float32
	logger      arbor.ILogger
}

func newGeminiClient(ctx context.Context, cfg *common.GeminiConfig, logger arbor.ILogger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Debug().
		Str("model", cfg.Model).
		Float32("temperature", cfg.Temperature).
		Msg("Gemini client initialized")

	return &geminiClient{
		client:      client,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

func (c *geminiClient) generate(ctx context.Context, model, system, prompt string) (string, tokenUsage, error) {
	config := &genai.GenerateContentConfig{}
	if c.temperature > 0 {
		config.Temperature = genai.Ptr(c.temperature)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", tokenUsage{}, fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", tokenUsage{}, fmt.Errorf("no response generated from Gemini API")
	}

	var usage tokenUsage
	if resp.UsageMetadata != nil {
		usage.inputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.outputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return text, usage, nil
}
