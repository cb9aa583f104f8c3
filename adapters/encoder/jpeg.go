package encoder

import (
	"image/jpeg"
	"io"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// JPEG stores results lossily. Alpha is dropped.
type JPEG struct {
	Quality int
}

func NewJPEG(quality int) *JPEG {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &JPEG{Quality: quality}
}

func (j *JPEG) MimeType() string { return core.MimeJPEG }

func (j *JPEG) Encode(w io.Writer, b *core.Bitmap) error {
	if b == nil {
		return apperrors.New(apperrors.CategoryEncode, "jpeg.encode", apperrors.ErrEmptyInput)
	}
	if err := jpeg.Encode(w, b.Image(), &jpeg.Options{Quality: j.Quality}); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return nil
}

func (j *JPEG) DecodeConfig(r io.Reader) (core.Size, error) {
	cfg, err := jpeg.DecodeConfig(r)
	if err != nil {
		return core.Size{}, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode_config", err)
	}
	return core.Size{Width: cfg.Width, Height: cfg.Height}, nil
}

func (j *JPEG) Decode(r io.Reader, opts *core.DecodeOptions, alloc func(w, h int) *core.Bitmap) (*core.Bitmap, error) {
	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}
	return intoBitmap(img, opts, alloc)
}

var _ core.ResultCodec = (*JPEG)(nil)
