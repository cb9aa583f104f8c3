// Package transform provides bitmap transformations applied after decoding.
// Every transformation writes into a bitmap taken from the loader's pool and
// leaves freeing the input to the caller.
package transform

import (
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/Skryldev/image-loader/core"
)

const samples = 4 // per axis, for coverage masks

func disallowReuse(rc *core.RequestContext) bool {
	return rc != nil && rc.Request().DisallowReuseBitmap()
}

func newBitmap(l *core.Loader, rc *core.RequestContext, w, h int, config core.PixelConfig) *core.Bitmap {
	return l.BitmapPool().GetOrCreate(w, h, config, disallowReuse(rc))
}

// alphaConfig is c, or RGBA when c cannot store transparency.
func alphaConfig(c core.PixelConfig) core.PixelConfig {
	if c == core.ConfigGray {
		return core.ConfigRGBA
	}
	return c
}

// copyInto draws src onto a fresh pooled bitmap of the same size.
func copyInto(l *core.Loader, rc *core.RequestContext, src image.Image, config core.PixelConfig) *core.Bitmap {
	b := src.Bounds()
	out := newBitmap(l, rc, b.Dx(), b.Dy(), config)
	core.DrawScaled(out, src, b)
	return out
}

// coverageMask renders an anti-aliased alpha mask of w x h where inside
// reports whether a point lies in the shape.
func coverageMask(w, h int, inside func(x, y float64) bool) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	const total = samples * samples
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for sy := 0; sy < samples; sy++ {
				for sx := 0; sx < samples; sx++ {
					px := float64(x) + (float64(sx)+0.5)/samples
					py := float64(y) + (float64(sy)+0.5)/samples
					if inside(px, py) {
						n++
					}
				}
			}
			mask.Pix[y*mask.Stride+x] = uint8(math.Round(float64(n) * 255 / total))
		}
	}
	return mask
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
