package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/replicate"
)

const (
	// DefaultUpscaleVersion is the clarity-upscaler model version.
	DefaultUpscaleVersion = "philz1337x/clarity-upscaler:dfad41707589d68ecdccd1dfa600d55a208f9310748e44bfe35b4a6291453d5e"

	// DefaultAckTimeout bounds how long the generation webhook waits for the
	// provider to accept an upscale job.
	DefaultAckTimeout = 2 * time.Second
)

// UpscaleInput is the fixed upscaler configuration; only Image varies.
type UpscaleInput struct {
	Seed                  int     `json:"seed"`
	Image                 string  `json:"image"`
	Prompt                string  `json:"prompt"`
	Dynamic               int     `json:"dynamic"`
	Handfix               string  `json:"handfix"`
	Pattern               bool    `json:"pattern"`
	Sharpen               int     `json:"sharpen"`
	SDModel               string  `json:"sd_model"`
	Scheduler             string  `json:"scheduler"`
	Creativity            float64 `json:"creativity"`
	LoraLinks             string  `json:"lora_links"`
	Downscaling           bool    `json:"downscaling"`
	Resemblance           float64 `json:"resemblance"`
	ScaleFactor           int     `json:"scale_factor"`
	TilingWidth           int     `json:"tiling_width"`
	OutputFormat          string  `json:"output_format"`
	TilingHeight          int     `json:"tiling_height"`
	CustomSDModel         string  `json:"custom_sd_model"`
	NegativePrompt        string  `json:"negative_prompt"`
	NumInferenceSteps     int     `json:"num_inference_steps"`
	DownscalingResolution int     `json:"downscaling_resolution"`
}

// NewUpscaleInput returns the upscaler input for imageURL.
func NewUpscaleInput(imageURL string) UpscaleInput {
	return UpscaleInput{
		Seed:                  1337,
		Image:                 imageURL,
		Prompt:                "masterpiece, best quality, highres, wallpaper, <lora:more_details:0.5> <lora:SDXLrender_v2.0:1>",
		Dynamic:               6,
		Handfix:               "disabled",
		Sharpen:               0,
		SDModel:               "juggernaut_reborn.safetensors [338b85bc4f]",
		Scheduler:             "DPM++ 3M SDE Karras",
		Creativity:            0.35,
		Resemblance:           0.6,
		ScaleFactor:           2,
		TilingWidth:           112,
		OutputFormat:          "jpg",
		TilingHeight:          144,
		NegativePrompt:        "(worst quality, low quality, normal quality:2) JuggernautNegative-neg",
		NumInferenceSteps:     18,
		DownscalingResolution: 768,
	}
}

// Upscaler is the second stage.
type Upscaler struct {
	provider   Provider
	version    string
	baseURL    string
	ackTimeout time.Duration
}

// NewUpscaler creates an Upscaler. Zero values select DefaultUpscaleVersion
// and DefaultAckTimeout.
func NewUpscaler(provider Provider, version, baseURL string, ackTimeout time.Duration) *Upscaler {
	if version == "" {
		version = DefaultUpscaleVersion
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Upscaler{provider: provider, version: version, baseURL: baseURL, ackTimeout: ackTimeout}
}

// Submit sends the upscale job and waits for the provider's acknowledgment.
func (u *Upscaler) Submit(ctx context.Context, imageURL, category string) (string, error) {
	p, err := u.provider.CreatePrediction(ctx, replicate.PredictionRequest{
		Version:             u.version,
		Input:               NewUpscaleInput(imageURL),
		Webhook:             CallbackURL(u.baseURL, UpscaleCallbackPath, category),
		WebhookEventsFilter: []string{replicate.EventCompleted},
	})
	if err != nil {
		return "", fmt.Errorf("submit upscale job: %w", err)
	}
	return p.ID, nil
}

// Trigger submits the upscale job, returning once the provider acknowledges
// it or the acknowledgment timeout elapses, whichever comes first. Failures
// are logged and not returned. The result is the status the generation
// webhook answers with, which is always 200 so the provider does not
// redeliver the callback.
func (u *Upscaler) Trigger(ctx context.Context, imageURL, category string) int {
	ctx, cancel := context.WithTimeout(ctx, u.ackTimeout)
	defer cancel()

	start := time.Now()
	id, err := u.Submit(ctx, imageURL, category)
	if err != nil {
		log.Error().
			Err(err).
			Str("category", category).
			Dur("elapsed", time.Since(start)).
			Msg("Upscale submission failed")
		return http.StatusOK
	}
	log.Info().
		Str("category", category).
		Str("predictionId", id).
		Dur("elapsed", time.Since(start)).
		Msg("Upscale job submitted")
	return http.StatusOK
}
