// Package decoder turns fetched bytes into bitmaps sized for the request.
package decoder

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Std decodes every format registered with the image package: JPEG, PNG,
// GIF, WebP, BMP and TIFF. Only the first frame of animated images is used.
type Std struct{}

func (Std) Key() string { return "Std" }

func (Std) Create(l *core.Loader, rc *core.RequestContext, fr *core.FetchResult) core.BitmapDecoder {
	if fr == nil || fr.DataSource == nil || !Supports(fr.MimeType) {
		return nil
	}
	return &stdDecoder{loader: l, rc: rc, fr: fr}
}

// Supports reports whether Std can decode mime.
func Supports(mime string) bool {
	switch mime {
	case core.MimeJPEG, "image/jpg", core.MimePNG, core.MimeGIF, core.MimeWebP, core.MimeBMP, core.MimeTIFF:
		return true
	}
	return false
}

type stdDecoder struct {
	loader *core.Loader
	rc     *core.RequestContext
	fr     *core.FetchResult
}

func (d *stdDecoder) Decode(ctx context.Context) (*core.BitmapDecodeResult, error) {
	ds := d.fr.DataSource
	info, err := ReadImageInfo(ds, d.rc.Request().IgnoreExifOrientation())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := RealDecode(d.loader, d.rc, ds.DataFrom(), info, true, func(opts *core.DecodeOptions) (*core.Bitmap, error) {
		return d.decode(info, opts)
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		d.release(res.Bitmap)
		return nil, err
	}
	res = AppliedExifOrientation(d.loader, d.rc, res)
	res = AppliedResize(d.loader, d.rc, res)
	return res, nil
}

// decode runs a full decode and reduces it to the subsampled size, cropping
// to opts.Region first when set.
func (d *stdDecoder) decode(info core.ImageInfo, opts *core.DecodeOptions) (*core.Bitmap, error) {
	r, err := d.fr.DataSource.Open()
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "decode.open", err)
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "decode",
			fmt.Errorf("%w: %v", apperrors.ErrInvalidImage, err))
	}

	bounds := img.Bounds()
	src := bounds
	size := core.SampledSize(info.Size(), opts.SampleSize, info.MimeType)
	if opts.Region != nil {
		src = opts.Region.Add(bounds.Min).Intersect(bounds)
		if src.Empty() {
			return nil, apperrors.New(apperrors.CategoryDecode, "decode.region",
				fmt.Errorf("%w: region %v outside %v", apperrors.ErrInvalidDimensions, *opts.Region, bounds))
		}
		regionSize := core.Size{Width: src.Dx(), Height: src.Dy()}
		size = core.SampledSizeForRegion(regionSize, opts.SampleSize, info.MimeType, info.Size())
	}
	size.Width = max(size.Width, 1)
	size.Height = max(size.Height, 1)

	out := opts.InBitmap
	if out != nil {
		if out.Size() != size || out.Config() != opts.Config {
			return nil, fmt.Errorf("%w: have %s, need %s %s", apperrors.ErrInBitmap, out, size, opts.Config)
		}
	} else {
		req := d.rc.Request()
		out = d.loader.BitmapPool().GetOrCreate(size.Width, size.Height, opts.Config, req.DisallowReuseBitmap())
	}
	core.DrawScaled(out, img, src)
	return out, nil
}

func (d *stdDecoder) release(b *core.Bitmap) {
	if b != nil {
		d.loader.BitmapPool().Free(b, d.rc.Request().DisallowReuseBitmap())
	}
}

// ReadImageInfo reads the image header and, for formats that carry it, the
// exif orientation. ignoreExif forces an undefined orientation.
func ReadImageInfo(ds core.DataSource, ignoreExif bool) (core.ImageInfo, error) {
	cfg, format, err := withSource(ds, func(r io.Reader) (image.Config, string, error) {
		return image.DecodeConfig(r)
	})
	if err != nil {
		if apperrors.IsCategory(err, apperrors.CategoryDecode) {
			return core.ImageInfo{}, err
		}
		return core.ImageInfo{}, apperrors.New(apperrors.CategoryDecode, "decode.config",
			fmt.Errorf("%w: %v", apperrors.ErrInvalidImage, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return core.ImageInfo{}, apperrors.New(apperrors.CategoryDecode, "decode.config",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, cfg.Width, cfg.Height))
	}
	info := core.ImageInfo{Width: cfg.Width, Height: cfg.Height, MimeType: "image/" + format}
	if !ignoreExif && carriesExif(info.MimeType) {
		info.ExifOrientation = readOrientation(ds)
	}
	return info, nil
}

func withSource[T any](ds core.DataSource, fn func(io.Reader) (T, string, error)) (T, string, error) {
	var zero T
	r, err := ds.Open()
	if err != nil {
		return zero, "", apperrors.New(apperrors.CategoryDecode, "decode.open", err)
	}
	defer r.Close()
	return fn(r)
}

var _ core.BitmapDecoderFactory = Std{}
