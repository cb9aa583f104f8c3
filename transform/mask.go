package transform

import (
	"context"
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Mask tints the bitmap with Color at Alpha opacity. Transparent pixels stay
// transparent.
type Mask struct {
	Color colorful.Color
	Alpha float64
}

// NewMask parses a "#rgb" or "#rrggbb" colour. alpha is clamped to [0, 1].
func NewMask(hex string, alpha float64) (*Mask, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "mask", fmt.Errorf("colour %q: %w", hex, err))
	}
	return &Mask{Color: c, Alpha: min(max(alpha, 0), 1)}, nil
}

func (t *Mask) Key() string {
	return fmt.Sprintf("MaskTransformation(%s,%.2f)", t.Color.Hex(), t.Alpha)
}

func (t *Mask) Transformed() string {
	return fmt.Sprintf("MaskTransformed(%s,%.2f)", t.Color.Hex(), t.Alpha)
}

func (t *Mask) Transform(ctx context.Context, l *core.Loader, rc *core.RequestContext, input *core.Bitmap) (*core.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Alpha == 0 {
		return nil, nil
	}
	src := input.Image()
	b := src.Bounds()
	out := newBitmap(l, rc, b.Dx(), b.Dy(), input.Config())
	dst := out.Image()

	c := t.Color.Clamped()
	mr, mg, mb := c.R, c.G, c.B
	keep := 1 - t.Alpha
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			fa := float64(a)
			dst.Set(x, y, color.RGBA64{
				R: uint16(mr*t.Alpha*fa + float64(r)*keep),
				G: uint16(mg*t.Alpha*fa + float64(g)*keep),
				B: uint16(mb*t.Alpha*fa + float64(bl)*keep),
				A: uint16(a),
			})
		}
	}
	return &core.TransformResult{Bitmap: out, Transformed: t.Transformed()}, nil
}

var _ core.Transformation = (*Mask)(nil)
