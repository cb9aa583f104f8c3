package transform

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// RoundedCorners clips the bitmap to a rectangle with elliptical corners.
// Radii holds four [x, y] pairs ordered top-left, top-right, bottom-right,
// bottom-left. Radii that do not fit the bitmap are scaled down together.
type RoundedCorners struct {
	Radii [8]float64
}

// NewRoundedCorners accepts one radius for every corner, four radii (top-left,
// top-right, bottom-right, bottom-left) or all eight values.
func NewRoundedCorners(radii ...float64) (*RoundedCorners, error) {
	var r RoundedCorners
	switch len(radii) {
	case 1:
		for i := range r.Radii {
			r.Radii[i] = radii[0]
		}
	case 4:
		for i, v := range radii {
			r.Radii[2*i], r.Radii[2*i+1] = v, v
		}
	case 8:
		copy(r.Radii[:], radii)
	default:
		return nil, apperrors.New(apperrors.CategoryInput, "rounded_corners",
			fmt.Errorf("want 1, 4 or 8 radii, got %d", len(radii)))
	}
	for _, v := range r.Radii {
		if v < 0 || math.IsNaN(v) {
			return nil, apperrors.New(apperrors.CategoryInput, "rounded_corners",
				fmt.Errorf("radius must be >= 0, got %v", v))
		}
	}
	return &r, nil
}

func (t *RoundedCorners) Key() string {
	return "RoundedCornersTransformation(" + formatFloats(t.Radii[:]) + ")"
}

// Transformed is the tag recorded in the transformed list.
func (t *RoundedCorners) Transformed() string {
	return "RoundedCornersTransformed(" + formatFloats(t.Radii[:]) + ")"
}

func (t *RoundedCorners) Transform(ctx context.Context, l *core.Loader, rc *core.RequestContext, input *core.Bitmap) (*core.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := input.Width(), input.Height()
	mask := coverageMask(w, h, t.inside(float64(w), float64(h)))
	out := newBitmap(l, rc, w, h, alphaConfig(input.Config()))
	src := input.Image()
	draw.DrawMask(out.Image(), out.Image().Bounds(), src, src.Bounds().Min, mask, image.Point{}, draw.Src)
	return &core.TransformResult{Bitmap: out, Transformed: t.Transformed()}, nil
}

func (t *RoundedCorners) inside(w, h float64) func(x, y float64) bool {
	r := t.Radii
	f := 1.0
	for _, pair := range [][3]float64{
		{r[0], r[2], w}, // top edge: tl.x + tr.x
		{r[6], r[4], w}, // bottom edge: bl.x + br.x
		{r[1], r[7], h}, // left edge: tl.y + bl.y
		{r[3], r[5], h}, // right edge: tr.y + br.y
	} {
		if sum := pair[0] + pair[1]; sum > pair[2] {
			f = math.Min(f, pair[2]/sum)
		}
	}
	for i := range r {
		r[i] *= f
	}
	corner := func(x, y, cx, cy, rx, ry float64) bool {
		if rx <= 0 || ry <= 0 {
			return true
		}
		dx, dy := (x-cx)/rx, (y-cy)/ry
		return dx*dx+dy*dy <= 1
	}
	return func(x, y float64) bool {
		switch {
		case x < r[0] && y < r[1]:
			return corner(x, y, r[0], r[1], r[0], r[1])
		case x > w-r[2] && y < r[3]:
			return corner(x, y, w-r[2], r[3], r[2], r[3])
		case x > w-r[4] && y > h-r[5]:
			return corner(x, y, w-r[4], h-r[5], r[4], r[5])
		case x < r[6] && y > h-r[7]:
			return corner(x, y, r[6], h-r[7], r[6], r[7])
		}
		return true
	}
}

var _ core.Transformation = (*RoundedCorners)(nil)
