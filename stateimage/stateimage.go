// Package stateimage provides placeholder and error images for requests.
package stateimage

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Color renders a uniform colour of unbounded size.
type Color struct {
	Color color.Color
}

// NewColor parses a "#rgb" or "#rrggbb" colour.
func NewColor(hex string) (*Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "state_image.color", fmt.Errorf("colour %q: %w", hex, err))
	}
	r, g, b := c.Clamped().RGB255()
	return &Color{Color: color.RGBA{R: r, G: g, B: b, A: 0xff}}, nil
}

func (s *Color) Image(*core.ImageRequest, error) image.Image { return image.NewUniform(s.Color) }

// Static always renders the same image.
type Static struct {
	Img image.Image
}

func (s *Static) Image(*core.ImageRequest, error) image.Image { return s.Img }

// ErrorImage picks an image by failure. Matchers are tried in the order they
// were added; the fallback covers everything else.
type ErrorImage struct {
	fallback core.StateImage
	matchers []matcher
}

type matcher struct {
	match func(req *core.ImageRequest, err error) bool
	image core.StateImage
}

// Error returns an ErrorImage rendering fallback, which may be nil.
func Error(fallback core.StateImage) *ErrorImage {
	return &ErrorImage{fallback: fallback}
}

// WithUriEmpty renders img for requests whose URI is blank.
func (e *ErrorImage) WithUriEmpty(img core.StateImage) *ErrorImage {
	return e.With(func(_ *core.ImageRequest, err error) bool {
		return errors.Is(err, apperrors.ErrBlankURI)
	}, img)
}

// With renders img when match reports true.
func (e *ErrorImage) With(match func(req *core.ImageRequest, err error) bool, img core.StateImage) *ErrorImage {
	out := &ErrorImage{fallback: e.fallback, matchers: append(append([]matcher(nil), e.matchers...), matcher{match, img})}
	return out
}

func (e *ErrorImage) Image(req *core.ImageRequest, err error) image.Image {
	for _, m := range e.matchers {
		if m.match(req, err) {
			return m.image.Image(req, err)
		}
	}
	if e.fallback == nil {
		return nil
	}
	return e.fallback.Image(req, err)
}

var (
	_ core.StateImage = (*Color)(nil)
	_ core.StateImage = (*Static)(nil)
	_ core.StateImage = (*ErrorImage)(nil)
)
