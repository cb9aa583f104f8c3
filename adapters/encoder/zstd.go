package encoder

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// MimeRawZstd labels zstd-compressed raw bitmaps.
const MimeRawZstd = "application/x-bitmap+zstd"

var zstdMagic = [4]byte{'I', 'L', 'Z', '1'}

type zstdHeader struct {
	Magic  [4]byte
	Width  uint32
	Height uint32
	Config uint8
}

// Zstd stores the raw pixel buffer compressed with zstd. Decoding skips any
// image codec, the stored layout is restored as is.
type Zstd struct {
	level zstd.EncoderLevel
}

func NewZstd() *Zstd { return &Zstd{level: zstd.SpeedFastest} }

func (z *Zstd) MimeType() string { return MimeRawZstd }

func (z *Zstd) Encode(w io.Writer, b *core.Bitmap) error {
	if b == nil {
		return apperrors.New(apperrors.CategoryEncode, "zstd.encode", apperrors.ErrEmptyInput)
	}
	h := zstdHeader{Magic: zstdMagic, Width: uint32(b.Width()), Height: uint32(b.Height()), Config: uint8(b.Config())}
	if err := binary.Write(w, binary.BigEndian, h); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "zstd.encode.header", err)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(z.level))
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "zstd.encode.writer", err)
	}
	if _, err := enc.Write(b.Pix()); err != nil {
		_ = enc.Close()
		return apperrors.Wrap(apperrors.CategoryEncode, "zstd.encode", err)
	}
	if err := enc.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "zstd.encode.close", err)
	}
	return nil
}

func (z *Zstd) DecodeConfig(r io.Reader) (core.Size, error) {
	h, err := readZstdHeader(r)
	if err != nil {
		return core.Size{}, err
	}
	return core.Size{Width: int(h.Width), Height: int(h.Height)}, nil
}

// Decode restores the stored bitmap. A reused bitmap must match the stored
// size and config exactly.
func (z *Zstd) Decode(r io.Reader, opts *core.DecodeOptions, alloc func(w, h int) *core.Bitmap) (*core.Bitmap, error) {
	h, err := readZstdHeader(r)
	if err != nil {
		return nil, err
	}
	w, ht, cfg := int(h.Width), int(h.Height), core.PixelConfig(h.Config)

	dst := opts.InBitmap
	switch {
	case dst != nil:
		if dst.Width() != w || dst.Height() != ht || dst.Config() != cfg {
			return nil, fmt.Errorf("%w: %s for %dx%d %s", apperrors.ErrInBitmap, dst, w, ht, cfg)
		}
	default:
		dst = alloc(w, ht)
		if dst.Config() != cfg {
			dst = core.NewBitmap(w, ht, cfg)
		}
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "zstd.decode.reader", err)
	}
	defer dec.Close()
	if _, err := io.ReadFull(dec, dst.Pix()); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "zstd.decode", err)
	}
	return dst, nil
}

func readZstdHeader(r io.Reader) (zstdHeader, error) {
	var h zstdHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return h, apperrors.Wrap(apperrors.CategoryDecode, "zstd.header", err)
	}
	if h.Magic != zstdMagic {
		return h, apperrors.New(apperrors.CategoryDecode, "zstd.header", apperrors.ErrUnsupportedFormat)
	}
	if h.Width == 0 || h.Height == 0 {
		return h, apperrors.New(apperrors.CategoryDecode, "zstd.header", apperrors.ErrInvalidDimensions)
	}
	return h, nil
}

var _ core.ResultCodec = (*Zstd)(nil)
