package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is the encoder quality for locally downscaled previews.
const DefaultJPEGQuality = 85

// LocalDownscaler resizes in-process with golang.org/x/image/draw. It is used
// when no imgproxy instance is configured.
type LocalDownscaler struct {
	width   int
	height  int
	quality int
}

// Compile-time interface check.
var _ Downscaler = (*LocalDownscaler)(nil)

// NewLocalDownscaler resizes in process to fit within width x height.
func NewLocalDownscaler(width, height int) *LocalDownscaler {
	return &LocalDownscaler{width: width, height: height, quality: DefaultJPEGQuality}
}

func (d *LocalDownscaler) Downscale(_ context.Context, _ string, full []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(full))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), d.width, d.height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("srcWidth", b.Dx()).
		Int("srcHeight", b.Dy()).
		Int("width", w).
		Int("height", h).
		Int("size", buf.Len()).
		Msg("Image downscaled locally")
	return buf.Bytes(), nil
}

// FitWithin scales (w, h) down to fit inside (maxW, maxH) keeping the aspect
// ratio. Images already inside the box are returned unchanged; a zero bound
// leaves that axis unconstrained.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1 {
		return w, h
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
