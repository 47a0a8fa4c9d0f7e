package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/categories"
	"github.com/beanvault/wallpaper-ai/internal/replicate"
)

// DefaultGenerationModel is the text-to-image model.
const DefaultGenerationModel = "black-forest-labs/flux-pro"

// GenerationInput is the text-to-image model input. Dimensions give a
// phone-portrait aspect that the upscaler doubles.
type GenerationInput struct {
	Prompt           string `json:"prompt"`
	Steps            int    `json:"steps"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Guidance         int    `json:"guidance"`
	Interval         int    `json:"interval"`
	AspectRatio      string `json:"aspect_ratio"`
	OutputFormat     string `json:"output_format"`
	OutputQuality    int    `json:"output_quality"`
	SafetyTolerance  int    `json:"safety_tolerance"`
	PromptUpsampling bool   `json:"prompt_upsampling"`
}

// NewGenerationInput wraps prompt in the wallpaper instruction for category.
func NewGenerationInput(category, prompt string) GenerationInput {
	return GenerationInput{
		Prompt:           fmt.Sprintf("Create a phone Wallpaper in following Category: %s Prompt: %s", category, prompt),
		Steps:            40,
		Width:            662,
		Height:           1440,
		Guidance:         3,
		Interval:         2,
		AspectRatio:      "custom",
		OutputFormat:     "jpg",
		OutputQuality:    80,
		SafetyTolerance:  2,
		PromptUpsampling: false,
	}
}

// Generator is the first stage. It keeps no record of submitted jobs; the
// category travels in the callback URL.
type Generator struct {
	provider Provider
	model    string
	baseURL  string
}

// NewGenerator creates a Generator. baseURL is the public origin that the
// provider calls back; an empty model selects DefaultGenerationModel.
func NewGenerator(provider Provider, model, baseURL string) *Generator {
	if model == "" {
		model = DefaultGenerationModel
	}
	return &Generator{provider: provider, model: model, baseURL: baseURL}
}

// Submit starts a generation job and returns the provider job id. Errors are
// returned to the caller as-is; there is no retry.
func (g *Generator) Submit(ctx context.Context, category, prompt string) (string, error) {
	key, err := categories.Normalize(category)
	if err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	callback := CallbackURL(g.baseURL, GeneratedCallbackPath, key)
	p, err := g.provider.CreatePrediction(ctx, replicate.PredictionRequest{
		Model:               g.model,
		Input:               NewGenerationInput(key, prompt),
		Webhook:             callback,
		WebhookEventsFilter: []string{replicate.EventCompleted},
	})
	if err != nil {
		return "", fmt.Errorf("submit generation job: %w", err)
	}

	log.Info().
		Str("category", key).
		Str("predictionId", p.ID).
		Str("callback", callback).
		Msg("Generation job submitted")
	return p.ID, nil
}
