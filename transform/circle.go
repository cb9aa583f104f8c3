package transform

import (
	"context"
	"image"
	"image/draw"

	"github.com/Skryldev/image-loader/core"
)

// CircleCrop crops the bitmap to a square of its shorter side, picked by
// Scale, and clips it to the inscribed circle. FILL squeezes the whole bitmap
// into the square instead of cropping.
type CircleCrop struct {
	Scale core.Scale
}

func (t *CircleCrop) Key() string { return "CircleCropTransformation(" + t.Scale.String() + ")" }

func (t *CircleCrop) Transformed() string { return "CircleCropTransformed(" + t.Scale.String() + ")" }

func (t *CircleCrop) Transform(ctx context.Context, l *core.Loader, rc *core.RequestContext, input *core.Bitmap) (*core.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	side := min(input.Width(), input.Height())
	m := core.CalculateResizeMapping(input.Width(), input.Height(), side, side, core.PrecisionExactly, t.Scale)
	src := input.Image()
	origin := m.SrcRect.Min.Add(src.Bounds().Min)

	config := alphaConfig(input.Config())
	if m.SrcRect.Dx() != side || m.SrcRect.Dy() != side {
		squared := newBitmap(l, rc, side, side, config)
		core.DrawScaled(squared, src, m.SrcRect.Add(src.Bounds().Min))
		defer l.BitmapPool().Free(squared, disallowReuse(rc))
		src, origin = squared.Image(), image.Point{}
	}

	radius := float64(side) / 2
	mask := coverageMask(side, side, func(x, y float64) bool {
		dx, dy := x-radius, y-radius
		return dx*dx+dy*dy <= radius*radius
	})
	out := newBitmap(l, rc, side, side, config)
	draw.DrawMask(out.Image(), out.Image().Bounds(), src, origin, mask, image.Point{}, draw.Src)
	return &core.TransformResult{Bitmap: out, Transformed: t.Transformed()}, nil
}

var _ core.Transformation = (*CircleCrop)(nil)
