package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"neurogallery/server/internal/config"
)

const (
	maxRetries = 3
	retryDelay = 1 * time.Second
)

// Client resolves descriptive metadata for models through an OpenAI-style
// chat API. Every method degrades to a zero value on failure; callers treat
// absence as normal.
type Client struct {
	client      *openai.Client
	model       string
	imageModel  string
	timeout     time.Duration
	temperature float32
}

func NewClient(cfg config.EnrichConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:      openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		imageModel:  cfg.ImageModel,
		timeout:     cfg.Timeout,
		temperature: float32(cfg.Temperature),
	}
}

// GenerateDescription writes a short description for a model based on its
// name, type and known trigger words.
func (c *Client) GenerateDescription(ctx context.Context, name, modelType, knownTriggers string) (string, error) {
	if knownTriggers == "" {
		knownTriggers = "None"
	}
	prompt := fmt.Sprintf(
		"Write a short, professional description (max 2 sentences) for a Stable Diffusion %s model named %q. "+
			"Known trigger words: %s. "+
			"Focus on what kind of aesthetics it likely produces based on the name.",
		modelType, name, knownTriggers,
	)

	return c.complete(ctx, prompt)
}

// EnhancePrompt rewrites a generation prompt for better quality. The
// original prompt is returned unchanged when the call fails.
func (c *Client) EnhancePrompt(ctx context.Context, prompt string) (string, error) {
	improved, err := c.complete(ctx, fmt.Sprintf(
		"Optimize this Stable Diffusion prompt for better artistic quality, detail, and lighting. "+
			"Keep it comma-separated. Original: %q", prompt,
	))
	if err != nil || improved == "" {
		return prompt, err
	}
	return improved, nil
}

// FindThumbnail asks for a direct preview-image URL for the model. Anything
// that does not look like a URL is treated as not found.
func (c *Client) FindThumbnail(ctx context.Context, name string) (string, error) {
	answer, err := c.complete(ctx, fmt.Sprintf(
		"Find a direct URL for the main preview image or cover art for the Stable Diffusion model %q. "+
			"Prefer Civitai or HuggingFace images. "+
			"Return ONLY the raw URL string. Do not include markdown or explanations.", name,
	))
	if err != nil {
		return "", err
	}

	answer = strings.TrimSpace(answer)
	if !strings.HasPrefix(answer, "http") {
		return "", nil
	}
	// First token only, in case the model appended commentary
	return strings.Fields(answer)[0], nil
}

// GenerateThumbnail produces an abstract thumbnail for the model as a data
// URI.
func (c *Client) GenerateThumbnail(ctx context.Context, name, modelType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Model: c.imageModel,
		Prompt: fmt.Sprintf(
			"A high quality, artistic, abstract square thumbnail image representing a Stable Diffusion %s model named %q. "+
				"Futuristic, digital art, vibrant colors, 8k resolution, centered composition.",
			modelType, name,
		),
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return "", fmt.Errorf("thumbnail generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", nil
	}

	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

// complete runs a single-message chat completion with retries.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		cancel()

		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion response")
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("completion failed after %d attempts: %w", maxRetries, lastErr)
}
