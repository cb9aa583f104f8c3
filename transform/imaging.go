package transform

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-loader/core"
)

// ── Rotate ────────────────────────────────────────────────────────────────────

// Rotate turns the bitmap clockwise by Degrees. Angles that are not a
// multiple of 90 grow the bitmap to fit and leave the corners transparent.
type Rotate struct {
	Degrees int
}

func (t *Rotate) normalized() int { return ((t.Degrees % 360) + 360) % 360 }

func (t *Rotate) Key() string { return fmt.Sprintf("RotateTransformation(%d)", t.normalized()) }

func (t *Rotate) Transformed() string { return fmt.Sprintf("RotateTransformed(%d)", t.normalized()) }

func (t *Rotate) Transform(ctx context.Context, l *core.Loader, rc *core.RequestContext, input *core.Bitmap) (*core.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	config := input.Config()
	var rotated *image.NRGBA
	switch deg := t.normalized(); deg {
	case 0:
		return nil, nil
	case 90:
		rotated = imaging.Rotate270(input.Image())
	case 180:
		rotated = imaging.Rotate180(input.Image())
	case 270:
		rotated = imaging.Rotate90(input.Image())
	default:
		rotated = imaging.Rotate(input.Image(), float64(360-deg), color.Transparent)
		config = alphaConfig(config)
	}
	return &core.TransformResult{Bitmap: copyInto(l, rc, rotated, config), Transformed: t.Transformed()}, nil
}

// ── Blur ──────────────────────────────────────────────────────────────────────

// Blur applies a gaussian blur of Radius pixels.
type Blur struct {
	Radius float64
}

func (t *Blur) Key() string { return fmt.Sprintf("BlurTransformation(%g)", t.Radius) }

func (t *Blur) Transformed() string { return fmt.Sprintf("BlurTransformed(%g)", t.Radius) }

func (t *Blur) Transform(ctx context.Context, l *core.Loader, rc *core.RequestContext, input *core.Bitmap) (*core.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Radius <= 0 {
		return nil, nil
	}
	blurred := blur.Gaussian(input.Image(), t.Radius)
	return &core.TransformResult{Bitmap: copyInto(l, rc, blurred, input.Config()), Transformed: t.Transformed()}, nil
}

// ── Grayscale ─────────────────────────────────────────────────────────────────

// Grayscale drops colour information, keeping the bitmap's pixel layout.
type Grayscale struct{}

func (*Grayscale) Key() string { return "GrayscaleTransformation" }

func (*Grayscale) Transformed() string { return "GrayscaleTransformed" }

func (t *Grayscale) Transform(ctx context.Context, l *core.Loader, rc *core.RequestContext, input *core.Bitmap) (*core.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gray := imaging.Grayscale(input.Image())
	return &core.TransformResult{Bitmap: copyInto(l, rc, gray, input.Config()), Transformed: t.Transformed()}, nil
}

var (
	_ core.Transformation = (*Rotate)(nil)
	_ core.Transformation = (*Blur)(nil)
	_ core.Transformation = (*Grayscale)(nil)
)
