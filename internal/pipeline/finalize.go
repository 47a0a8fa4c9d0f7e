package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/blob"
	"github.com/beanvault/wallpaper-ai/internal/catalog"
	"github.com/beanvault/wallpaper-ai/internal/events"
	"github.com/beanvault/wallpaper-ai/internal/imaging"
	"github.com/beanvault/wallpaper-ai/internal/metrics"
)

// DefaultFreeRatio makes one wallpaper in four free.
const DefaultFreeRatio = 4

// Counter hands out per-category sequence numbers.
type Counter interface {
	AdvanceCounter(ctx context.Context, category string) (int, error)
}

// Catalog records finalized wallpapers.
type Catalog interface {
	InsertWallpaper(ctx context.Context, w *catalog.Wallpaper) error
	WallpaperBySource(ctx context.Context, sourceID string) (*catalog.Wallpaper, error)
}

// EventPublisher announces finalized wallpapers.
type EventPublisher interface {
	WallpaperFinalized(ctx context.Context, event events.WallpaperFinalized) error
}

// FinalizeRequest is the validated content of an upscale callback.
type FinalizeRequest struct {
	Category  string
	OutputURL string
	// SourceID is the provider prediction id, when the callback carried one.
	SourceID string
}

// Result is the response body of a successful finalization.
type Result struct {
	FileName      string `json:"fileName"`
	URL           string `json:"url"`
	CategoryCount int    `json:"categoryCount"`
}

// FinalizerDeps are the collaborators of a Finalizer. Events may be nil.
type FinalizerDeps struct {
	Counter    Counter
	Catalog    Catalog
	Blobs      blob.Store
	PublicURL  func(key string) string
	Fetcher    imaging.Fetcher
	Downscaler imaging.Downscaler
	Events     EventPublisher
	FreeRatio  int
}

// Finalizer is the third stage.
type Finalizer struct {
	counter    Counter
	catalog    Catalog
	blobs      blob.Store
	publicURL  func(string) string
	fetcher    imaging.Fetcher
	downscaler imaging.Downscaler
	events     EventPublisher

	freeDraw func() bool
	now      func() time.Time
	newID    func() string
}

// NewFinalizer builds a Finalizer from d, defaulting the free ratio and the
// public URL builder.
func NewFinalizer(d FinalizerDeps) *Finalizer {
	ratio := d.FreeRatio
	if ratio <= 0 {
		ratio = DefaultFreeRatio
	}
	publicURL := d.PublicURL
	if publicURL == nil {
		publicURL = func(key string) string { return key }
	}
	return &Finalizer{
		counter:    d.Counter,
		catalog:    d.Catalog,
		blobs:      d.Blobs,
		publicURL:  publicURL,
		fetcher:    d.Fetcher,
		downscaler: d.Downscaler,
		events:     d.Events,
		freeDraw:   func() bool { return rand.IntN(ratio) == 0 },
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// stageError tags a finalization failure with the step that failed.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Finalize runs the finalization steps in order. A failure after the counter
// advanced leaves a gap in the category's sequence and possibly orphaned
// blobs; nothing is rolled back, and no two rows can share a filename.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (*Result, error) {
	start := time.Now()
	res, err := f.finalize(ctx, req)

	rec := metrics.New(metrics.Namespace).
		Dimension("Category", req.Category).
		Since("FinalizeLatencyMs", start)
	if err != nil {
		stage := "unknown"
		var se *stageError
		if errors.As(err, &se) {
			stage = se.stage
		}
		rec.Count("FinalizeFailed").Property("stage", stage).Flush()
		log.Error().Err(err).Str("category", req.Category).Str("stage", stage).Msg("Finalization failed")
		return nil, err
	}
	rec.Count("WallpaperFinalized").Property("filename", res.FileName).Flush()
	return res, nil
}

func (f *Finalizer) finalize(ctx context.Context, req FinalizeRequest) (*Result, error) {
	if req.SourceID != "" {
		existing, err := f.catalog.WallpaperBySource(ctx, req.SourceID)
		switch {
		case err == nil:
			log.Info().
				Str("predictionId", req.SourceID).
				Str("filename", existing.Filename).
				Msg("Upscale callback already finalized, returning existing row")
			return &Result{
				FileName:      existing.Filename,
				URL:           f.publicURL(blob.FullKey(existing.Filename)),
				CategoryCount: existing.Sequence,
			}, nil
		case !errors.Is(err, catalog.ErrNotFound):
			return nil, &stageError{"lookup source", err}
		}
	}

	next, err := f.counter.AdvanceCounter(ctx, req.Category)
	if err != nil {
		return nil, &stageError{"advance counter", err}
	}
	filename := catalog.Filename(req.Category, next)
	logger := log.With().Str("category", req.Category).Str("filename", filename).Int("sequence", next).Logger()
	logger.Debug().Msg("Sequence assigned")

	full, err := f.fetcher.Fetch(ctx, req.OutputURL)
	if err != nil {
		return nil, &stageError{"fetch upscaled image", err}
	}
	obj := blob.Object{ContentType: blob.ContentTypeJPEG, Metadata: blob.CategoryMetadata(req.Category)}
	fullKey := blob.FullKey(filename)
	if err := f.blobs.Put(ctx, fullKey, full, obj); err != nil {
		return nil, &stageError{"store full image", err}
	}

	small, err := f.downscaler.Downscale(ctx, req.OutputURL, full)
	if err != nil {
		return nil, &stageError{"downscale", err}
	}
	if err := f.blobs.Put(ctx, blob.DownscaledKey(filename), small, obj); err != nil {
		return nil, &stageError{"store downscaled image", err}
	}

	w := &catalog.Wallpaper{
		ID:        f.newID(),
		Filename:  filename,
		Category:  req.Category,
		Sequence:  next,
		IsFree:    f.freeDraw(),
		Downloads: 0,
		CreatedAt: f.now().UTC(),
		SourceID:  req.SourceID,
	}
	if err := f.catalog.InsertWallpaper(ctx, w); err != nil {
		return nil, &stageError{"insert catalog row", err}
	}

	res := &Result{
		FileName:      filename,
		URL:           f.publicURL(fullKey),
		CategoryCount: next,
	}
	logger.Info().Bool("isFree", w.IsFree).Str("url", res.URL).Msg("Wallpaper finalized")

	if f.events != nil {
		err := f.events.WallpaperFinalized(ctx, events.WallpaperFinalized{
			FileName:      filename,
			Category:      req.Category,
			Sequence:      next,
			IsFree:        w.IsFree,
			URL:           res.URL,
			CategoryCount: next,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to publish finalization event")
		}
	}
	return res, nil
}
