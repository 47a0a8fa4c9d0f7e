// Package prompt composes text-to-image prompts for a wallpaper category
// with a Gemini model.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/beanvault/wallpaper-ai/internal/categories"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Composer turns a category into an image prompt.
type Composer interface {
	Compose(ctx context.Context, category string, mode categories.Mode) (string, error)
}

// Messages returns the system instruction and user message for a category
// label in the given mode.
func Messages(label string, mode categories.Mode) (system, user string) {
	if mode == categories.Dark {
		return "Create concise, vivid prompts for Japanese-style dark mode wallpapers.",
			fmt.Sprintf("Generate a brief, detailed prompt for a Japanese-style dark mode wallpaper based on: %q. "+
				"Focus on dark palette, contrast, and mood. This is for a Japanese wallpaper generator app.", label)
	}
	return "Create concise, vivid prompts for Japanese-style wallpapers.",
		fmt.Sprintf("Generate a brief, detailed prompt for a Japanese-style wallpaper based on: %q. "+
			"Include visual style, colors, and unique elements. This is for a Japanese wallpaper generator app.", label)
}

// GeminiComposer implements Composer with the Gemini API.
type GeminiComposer struct {
	client *genai.Client
	model  string
}

// Compile-time interface check.
var _ Composer = (*GeminiComposer)(nil)

// NewGeminiComposer creates a Gemini API client for apiKey. An empty model
// selects DefaultModel.
func NewGeminiComposer(ctx context.Context, apiKey, model string) (*GeminiComposer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiComposer{client: client, model: model}, nil
}

func (g *GeminiComposer) Compose(ctx context.Context, category string, mode categories.Mode) (string, error) {
	label := categories.PromptLabel(category, mode)
	system, user := Messages(label, mode)

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	}

	log.Debug().
		Str("model", g.model).
		Str("category", category).
		Str("mode", string(mode)).
		Msg("Starting Gemini API call for prompt composition")

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate prompt: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	text := Clean(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned no prompt text")
	}

	log.Info().
		Str("category", category).
		Int("promptLength", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Prompt composed")
	return text, nil
}

// Clean strips the wrapping models tend to add around a bare prompt: a
// markdown code fence, a leading "Prompt:" label and enclosing quotes.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		end := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:end], "\n"))
	}
	for _, label := range []string{"Prompt:", "prompt:", "**Prompt:**"} {
		text = strings.TrimSpace(strings.TrimPrefix(text, label))
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

// Static is a Composer that always returns the same prompt.
type Static string

func (s Static) Compose(context.Context, string, categories.Mode) (string, error) {
	if s == "" {
		return "", fmt.Errorf("static prompt is empty")
	}
	return string(s), nil
}
