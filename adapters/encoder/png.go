package encoder

import (
	"image/png"
	"io"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// PNG stores results losslessly, keeping alpha.
type PNG struct {
	enc png.Encoder
}

func NewPNG() *PNG { return &PNG{enc: png.Encoder{CompressionLevel: png.BestSpeed}} }

func (p *PNG) MimeType() string { return core.MimePNG }

func (p *PNG) Encode(w io.Writer, b *core.Bitmap) error {
	if b == nil {
		return apperrors.New(apperrors.CategoryEncode, "png.encode", apperrors.ErrEmptyInput)
	}
	if err := p.enc.Encode(w, b.Image()); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return nil
}

func (p *PNG) DecodeConfig(r io.Reader) (core.Size, error) {
	cfg, err := png.DecodeConfig(r)
	if err != nil {
		return core.Size{}, apperrors.Wrap(apperrors.CategoryDecode, "png.decode_config", err)
	}
	return core.Size{Width: cfg.Width, Height: cfg.Height}, nil
}

func (p *PNG) Decode(r io.Reader, opts *core.DecodeOptions, alloc func(w, h int) *core.Bitmap) (*core.Bitmap, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	return intoBitmap(img, opts, alloc)
}

var _ core.ResultCodec = (*PNG)(nil)
