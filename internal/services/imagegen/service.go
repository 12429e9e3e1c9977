// -----------------------------------------------------------------------
// Image generation service - hero images via the Gemini image model
// -----------------------------------------------------------------------

package imagegen

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/interfaces"
)

// Flat per-image price in USD. The image API bills per generated image
// rather than per token.
const costPerImage = 0.039

// Service generates hero images through the Gemini image model
type Service struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

// NewService creates the image generation service. Returns an error when no
// Gemini API key is configured; callers that allow image-less operation
// should treat that as a disabled feature.
func NewService(ctx context.Context, cfg *common.GeminiConfig, logger arbor.ILogger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for image generation (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	model := cfg.ImageModel
	if model == "" {
		model = "gemini-2.5-flash-image"
	}

	logger.Debug().Str("model", model).Msg("Image generation service initialized")

	return &Service{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// GenerateImage produces one image for the given prompt and returns it as
// raw bytes with a fresh asset id.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (*interfaces.GeneratedImage, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("Gemini image API call failed: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			image := &interfaces.GeneratedImage{
				AssetID:  common.NewAssetID(),
				MimeType: mimeType,
				Data:     part.InlineData.Data,
				Cost:     costPerImage,
			}
			s.logger.Debug().
				Str("asset_id", image.AssetID).
				Str("mime_type", mimeType).
				Int("bytes", len(image.Data)).
				Msg("Image generated")
			return image, nil
		}
	}

	return nil, fmt.Errorf("no image content returned from Gemini API")
}
