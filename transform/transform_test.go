package transform_test

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/pool"
	"github.com/Skryldev/image-loader/transform"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

func newLoader() *core.Loader {
	return core.New(config.Default(), nil, core.Components{BitmapPool: pool.New(0, nil)})
}

func filled(w, h int, c color.RGBA) *core.Bitmap {
	b := core.NewBitmap(w, h, core.ConfigRGBA)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.Image().Set(x, y, c)
		}
	}
	return b
}

// halves is red on the left half and blue on the right.
func halves(w, h int) *core.Bitmap {
	b := filled(w, h, red)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			b.Image().Set(x, y, blue)
		}
	}
	return b
}

func run(t *testing.T, tr core.Transformation, input *core.Bitmap) *core.TransformResult {
	t.Helper()
	res, err := tr.Transform(context.Background(), newLoader(), nil, input)
	require.NoError(t, err)
	return res
}

func alphaAt(b *core.Bitmap, x, y int) uint32 {
	_, _, _, a := b.Image().At(x, y).RGBA()
	return a
}

func TestRoundedCorners(t *testing.T) {
	rc, err := transform.NewRoundedCorners(5)
	require.NoError(t, err)
	assert.Equal(t, "RoundedCornersTransformation(5,5,5,5,5,5,5,5)", rc.Key())

	res := run(t, rc, filled(20, 20, red))
	assert.Equal(t, rc.Transformed(), res.Transformed)
	assert.Equal(t, core.Size{Width: 20, Height: 20}, res.Bitmap.Size())
	assert.Zero(t, alphaAt(res.Bitmap, 0, 0))
	assert.Zero(t, alphaAt(res.Bitmap, 19, 19))
	assert.Equal(t, red, res.Bitmap.Image().At(0, 10))
	assert.Equal(t, red, res.Bitmap.Image().At(10, 10))
}

func TestRoundedCorners_PerCornerAndOversized(t *testing.T) {
	rc, err := transform.NewRoundedCorners(0, 8, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, [8]float64{0, 0, 8, 8, 0, 0, 0, 0}, rc.Radii)
	res := run(t, rc, filled(20, 20, red))
	assert.Equal(t, red, res.Bitmap.Image().At(0, 0))
	assert.Zero(t, alphaAt(res.Bitmap, 19, 0))

	huge, err := transform.NewRoundedCorners(100)
	require.NoError(t, err)
	res = run(t, huge, filled(10, 10, red))
	assert.Zero(t, alphaAt(res.Bitmap, 0, 0))
	assert.Equal(t, red, res.Bitmap.Image().At(5, 5))
}

func TestRoundedCorners_Invalid(t *testing.T) {
	_, err := transform.NewRoundedCorners(1, 2, 3)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
	_, err = transform.NewRoundedCorners(-1)
	assert.Error(t, err)
}

func TestCircleCrop(t *testing.T) {
	for _, tc := range []struct {
		scale  core.Scale
		center color.RGBA
	}{
		{core.ScaleStartCrop, red},
		{core.ScaleEndCrop, blue},
	} {
		cc := &transform.CircleCrop{Scale: tc.scale}
		res := run(t, cc, halves(40, 20))
		assert.Equal(t, core.Size{Width: 20, Height: 20}, res.Bitmap.Size(), tc.scale.String())
		assert.Equal(t, tc.center, res.Bitmap.Image().At(10, 10), tc.scale.String())
		assert.Zero(t, alphaAt(res.Bitmap, 0, 0))
		assert.Equal(t, "CircleCropTransformed("+tc.scale.String()+")", res.Transformed)
	}

	res := run(t, &transform.CircleCrop{Scale: core.ScaleFill}, halves(40, 20))
	assert.Equal(t, core.Size{Width: 20, Height: 20}, res.Bitmap.Size())
	assert.Equal(t, red, res.Bitmap.Image().At(5, 10))
	assert.Equal(t, blue, res.Bitmap.Image().At(15, 10))
}

func TestRotate(t *testing.T) {
	input := filled(4, 2, blue)
	input.Image().Set(0, 0, red)

	res := run(t, &transform.Rotate{Degrees: 90}, input)
	assert.Equal(t, core.Size{Width: 2, Height: 4}, res.Bitmap.Size())
	assert.Equal(t, red, res.Bitmap.Image().At(1, 0))
	assert.Equal(t, "RotateTransformed(90)", res.Transformed)

	assert.Nil(t, run(t, &transform.Rotate{Degrees: 360}, input))
	assert.Equal(t, "RotateTransformation(270)", (&transform.Rotate{Degrees: -90}).Key())

	res = run(t, &transform.Rotate{Degrees: 45}, filled(10, 10, red))
	assert.Greater(t, res.Bitmap.Width(), 10)
	assert.Zero(t, alphaAt(res.Bitmap, 0, 0))
}

func TestBlur(t *testing.T) {
	assert.Nil(t, run(t, &transform.Blur{Radius: 0}, filled(4, 4, red)))

	res := run(t, &transform.Blur{Radius: 3}, halves(20, 20))
	assert.Equal(t, core.Size{Width: 20, Height: 20}, res.Bitmap.Size())
	c := res.Bitmap.Image().At(10, 10).(color.RGBA)
	assert.NotZero(t, c.R)
	assert.NotZero(t, c.B)
	assert.Equal(t, "BlurTransformed(3)", res.Transformed)
}

func TestGrayscale(t *testing.T) {
	res := run(t, &transform.Grayscale{}, filled(3, 3, red))
	c := res.Bitmap.Image().At(1, 1).(color.RGBA)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)
	assert.EqualValues(t, 255, c.A)
	assert.Equal(t, core.ConfigRGBA, res.Bitmap.Config())
}

func TestMask(t *testing.T) {
	m, err := transform.NewMask("#0000ff", 1)
	require.NoError(t, err)
	assert.Equal(t, "MaskTransformation(#0000ff,1.00)", m.Key())

	input := filled(2, 1, red)
	input.Image().Set(1, 0, color.RGBA{})
	res := run(t, m, input)
	assert.Equal(t, blue, res.Bitmap.Image().At(0, 0))
	assert.Equal(t, color.RGBA{}, res.Bitmap.Image().At(1, 0))

	zero, err := transform.NewMask("#fff", 0)
	require.NoError(t, err)
	assert.Nil(t, run(t, zero, input))

	_, err = transform.NewMask("nope", 1)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
}

func TestTransform_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&transform.Grayscale{}).Transform(ctx, newLoader(), nil, filled(1, 1, red))
	assert.ErrorIs(t, err, context.Canceled)
}
