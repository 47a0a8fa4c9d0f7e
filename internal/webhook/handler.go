// Package webhook handles the completion callbacks the image provider sends
// for the two asynchronous pipeline stages.
//
// Generation callback (POST /webhook/generated?category=...):
//
//	Anything other than a succeeded prediction with an output URL and a
//	valid category is acknowledged with 200 and ignored. A successful
//	prediction triggers the upscale stage before the response is written.
//
// Upscale callback (POST /webhook/upscale?category=...):
//
//	A prediction whose status is anything but succeeded is acknowledged with
//	200. A missing
//	category or output, or a finalization failure, is answered with 400 and
//	{"error": ...}. Success answers 200 with the finalization result.
//
// When a signing secret is configured both callbacks must carry a valid
// signature; otherwise they are answered with 401.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/categories"
	"github.com/beanvault/wallpaper-ai/internal/httputil"
	"github.com/beanvault/wallpaper-ai/internal/pipeline"
	"github.com/beanvault/wallpaper-ai/internal/replicate"
)

// maxBodySize is the maximum allowed callback body size (1 MB). Prediction
// payloads carry input, output URLs and logs, well under this limit.
const maxBodySize = 1 << 20

// Upscaler starts the upscale stage for a generated image.
type Upscaler interface {
	Trigger(ctx context.Context, imageURL, category string) int
}

// Finalizer completes a wallpaper from an upscaled image.
type Finalizer interface {
	Finalize(ctx context.Context, req pipeline.FinalizeRequest) (*pipeline.Result, error)
}

// Handler serves both provider callbacks.
type Handler struct {
	upscaler  Upscaler
	finalizer Finalizer
	secret    string
	now       func() time.Time
}

// NewHandler creates a callback handler.
//
// secret is the provider's webhook signing secret ("whsec_..."). An empty
// secret disables signature verification.
func NewHandler(upscaler Upscaler, finalizer Finalizer, secret string) *Handler {
	return &Handler{
		upscaler:  upscaler,
		finalizer: finalizer,
		secret:    secret,
		now:       time.Now,
	}
}

// Register mounts the callback routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(pipeline.GeneratedCallbackPath, h.HandleGenerated)
	mux.HandleFunc(pipeline.UpscaleCallbackPath, h.HandleUpscale)
}

// HandleGenerated processes the text-to-image completion callback.
func (h *Handler) HandleGenerated(w http.ResponseWriter, r *http.Request) {
	pred, ok := h.readPrediction(w, r)
	if !ok {
		return
	}
	if pred == nil {
		// Unparseable bodies are acknowledged so the provider stops
		// redelivering them.
		w.WriteHeader(http.StatusOK)
		return
	}

	logger := log.With().Str("predictionId", pred.ID).Str("status", pred.Status).Logger()
	if pred.Status != replicate.StatusSucceeded {
		logger.Warn().Str("providerError", pred.ErrorMessage()).Msg("Generation did not succeed, ignoring callback")
		w.WriteHeader(http.StatusOK)
		return
	}

	category, err := categories.Normalize(r.URL.Query().Get("category"))
	if err != nil {
		logger.Warn().Err(err).Msg("Generation callback without a usable category, ignoring")
		w.WriteHeader(http.StatusOK)
		return
	}
	imageURL := pred.Output.First()
	if imageURL == "" {
		logger.Warn().Str("category", category).Msg("Generation callback without output, ignoring")
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.Info().Str("category", category).Str("imageUrl", imageURL).Msg("Generation complete, starting upscale")
	w.WriteHeader(h.upscaler.Trigger(r.Context(), imageURL, category))
}

// HandleUpscale processes the upscale completion callback and finalizes the
// wallpaper.
func (h *Handler) HandleUpscale(w http.ResponseWriter, r *http.Request) {
	pred, ok := h.readPrediction(w, r)
	if !ok {
		return
	}
	if pred == nil {
		httputil.Error(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	logger := log.With().Str("predictionId", pred.ID).Str("status", pred.Status).Logger()
	// A body without a status is treated as a completed upscale.
	if pred.Status != "" && pred.Status != replicate.StatusSucceeded {
		logger.Warn().Str("providerError", pred.ErrorMessage()).Msg("Upscale did not succeed, ignoring callback")
		w.WriteHeader(http.StatusOK)
		return
	}

	rawCategory := r.URL.Query().Get("category")
	if rawCategory == "" {
		httputil.Error(w, http.StatusBadRequest, "category is required")
		return
	}
	category, err := categories.Normalize(rawCategory)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	outputURL := pred.Output.First()
	if outputURL == "" {
		httputil.Error(w, http.StatusBadRequest, "output is required")
		return
	}

	res, err := h.finalizer.Finalize(r.Context(), pipeline.FinalizeRequest{
		Category:  category,
		OutputURL: outputURL,
		SourceID:  pred.ID,
	})
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to finalize wallpaper", err.Error())
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// readPrediction enforces the method, size limit and signature, then decodes
// the body. It returns ok=false when a response has already been written,
// and a nil prediction when the body could not be decoded.
func (h *Handler) readPrediction(w http.ResponseWriter, r *http.Request) (*replicate.Prediction, bool) {
	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Webhook: failed to read body")
		httputil.Error(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	defer r.Body.Close()

	if h.secret != "" {
		if err := replicate.VerifyWebhook(h.secret, r.Header, body, h.now()); err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Webhook: signature rejected")
			httputil.Error(w, http.StatusUnauthorized, "invalid signature")
			return nil, false
		}
	}

	var pred replicate.Prediction
	if err := json.Unmarshal(body, &pred); err != nil {
		log.Warn().Err(err).Int("bodySize", len(body)).Str("path", r.URL.Path).Msg("Webhook: undecodable body")
		return nil, true
	}
	return &pred, true
}
