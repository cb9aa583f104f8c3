// Package encoder provides the ResultCodec implementations used by the result
// disk cache.
package encoder

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// New returns the codec selected by cfg.ResultCodec.
func New(cfg config.Config) (core.ResultCodec, error) {
	switch cfg.ResultCodec {
	case config.CodecPNG, "":
		return NewPNG(), nil
	case config.CodecJPEG:
		return NewJPEG(cfg.JPEGQuality), nil
	case config.CodecZstd:
		return NewZstd(), nil
	}
	return nil, apperrors.New(apperrors.CategoryConfig, "encoder.new",
		fmt.Errorf("%w: result codec %q", apperrors.ErrUnsupportedFormat, cfg.ResultCodec))
}

// intoBitmap copies img into opts.InBitmap when set, else into alloc(w, h).
// A reused bitmap of the wrong size yields ErrInBitmap.
func intoBitmap(img image.Image, opts *core.DecodeOptions, alloc func(w, h int) *core.Bitmap) (*core.Bitmap, error) {
	b := img.Bounds()
	dst := opts.InBitmap
	if dst != nil {
		if dst.Width() != b.Dx() || dst.Height() != b.Dy() {
			return nil, fmt.Errorf("%w: %s for %dx%d", apperrors.ErrInBitmap, dst, b.Dx(), b.Dy())
		}
	} else {
		dst = alloc(b.Dx(), b.Dy())
	}
	draw.Draw(dst.Image(), dst.Image().Bounds(), img, b.Min, draw.Src)
	return dst, nil
}
