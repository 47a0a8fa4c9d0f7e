// Package pipeline implements the three stages that turn a category into a
// cataloged wallpaper:
//
//  1. Generator submits a text-to-image job whose completion callback is
//     /webhook/generated?category=...
//  2. Upscaler submits an upscaling job for the generated image whose
//     completion callback is /webhook/upscale?category=...
//  3. Finalizer assigns the next sequence number, stores both image variants
//     and inserts the catalog row.
//
// Stages are stateless; everything they need is injected at construction.
package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/beanvault/wallpaper-ai/internal/replicate"
)

// Callback paths registered by the HTTP layer.
const (
	GeneratedCallbackPath = "/webhook/generated"
	UpscaleCallbackPath   = "/webhook/upscale"
)

// Provider submits prediction jobs to the external image service.
type Provider interface {
	CreatePrediction(ctx context.Context, req replicate.PredictionRequest) (*replicate.Prediction, error)
}

// CallbackURL builds a webhook URL carrying the category as a query parameter.
func CallbackURL(baseURL, path, category string) string {
	return strings.TrimRight(baseURL, "/") + path + "?category=" + url.QueryEscape(category)
}
