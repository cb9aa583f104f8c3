// Package vips decodes images with libvips. Register a Backend in front of
// decoder.Std to get HEIF support and faster subsampled decodes of large
// JPEGs; it requires cgo and libvips at build time.
package vips

import (
	"context"
	"fmt"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a libvips-powered BitmapDecoderFactory.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder factory ──────────────────────────────────────────────────────────

func (b *Backend) Key() string { return "Vips" }

func (b *Backend) Create(l *core.Loader, rc *core.RequestContext, fr *core.FetchResult) core.BitmapDecoder {
	if fr == nil || fr.DataSource == nil || !supports(fr.MimeType) {
		return nil
	}
	return &vipsDecoder{loader: l, rc: rc, fr: fr}
}

func supports(mime string) bool {
	switch mime {
	case core.MimeJPEG, "image/jpg", core.MimePNG, core.MimeWebP, core.MimeGIF,
		core.MimeTIFF, core.MimeHEIC, core.MimeHEIF:
		return true
	}
	return false
}

type vipsDecoder struct {
	loader *core.Loader
	rc     *core.RequestContext
	fr     *core.FetchResult
}

func (d *vipsDecoder) Decode(ctx context.Context) (*core.BitmapDecodeResult, error) {
	raw, err := d.readSource()
	if err != nil {
		return nil, err
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode",
			fmt.Errorf("%w: %v", apperrors.ErrInvalidImage, err))
	}
	info := core.ImageInfo{
		Width:    ref.Width(),
		Height:   ref.Height(),
		MimeType: vipsFormatToMime(ref.Format(), d.fr.MimeType),
	}
	if !d.rc.Request().IgnoreExifOrientation() {
		info.ExifOrientation = ref.Orientation()
	}
	ref.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := decoder.RealDecode(d.loader, d.rc, d.fr.DataSource.DataFrom(), info, true,
		func(opts *core.DecodeOptions) (*core.Bitmap, error) {
			return d.decode(raw, info, opts)
		})
	if err != nil {
		return nil, err
	}
	res = decoder.AppliedExifOrientation(d.loader, d.rc, res)
	res = decoder.AppliedResize(d.loader, d.rc, res)
	return res, nil
}

// decode extracts opts.Region, shrinks by the sample size inside libvips and
// copies the pixels into the destination bitmap.
func (d *vipsDecoder) decode(raw []byte, info core.ImageInfo, opts *core.DecodeOptions) (*core.Bitmap, error) {
	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	size := core.SampledSize(info.Size(), opts.SampleSize, info.MimeType)
	if r := opts.Region; r != nil {
		if err := ref.ExtractArea(r.Min.X, r.Min.Y, r.Dx(), r.Dy()); err != nil {
			return nil, apperrors.New(apperrors.CategoryDecode, "vips.extract_area", err)
		}
		regionSize := core.Size{Width: r.Dx(), Height: r.Dy()}
		size = core.SampledSizeForRegion(regionSize, opts.SampleSize, info.MimeType, info.Size())
	}
	size.Width = max(size.Width, 1)
	size.Height = max(size.Height, 1)
	if opts.SampleSize > 1 {
		if err := ref.Resize(1/float64(opts.SampleSize), govips.KernelLanczos3); err != nil {
			return nil, apperrors.New(apperrors.CategoryDecode, "vips.resize", err)
		}
	}

	img, err := ref.ToImage(govips.NewDefaultExportParams())
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.to_image", err)
	}

	out := opts.InBitmap
	if out != nil {
		if out.Size() != size || out.Config() != opts.Config {
			return nil, fmt.Errorf("%w: have %s, need %s %s", apperrors.ErrInBitmap, out, size, opts.Config)
		}
	} else {
		out = d.loader.BitmapPool().GetOrCreate(size.Width, size.Height, opts.Config, d.rc.Request().DisallowReuseBitmap())
	}
	core.DrawScaled(out, img, img.Bounds())
	return out, nil
}

func (d *vipsDecoder) readSource() ([]byte, error) {
	if b, ok := d.fr.DataSource.(*core.BytesDataSource); ok {
		return b.Bytes(), nil
	}
	r, err := d.fr.DataSource.Open()
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.open", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.read", err)
	}
	return raw, nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToMime(f govips.ImageType, fallback string) string {
	switch f {
	case govips.ImageTypeJPEG:
		return core.MimeJPEG
	case govips.ImageTypePNG:
		return core.MimePNG
	case govips.ImageTypeWEBP:
		return core.MimeWebP
	case govips.ImageTypeGIF:
		return core.MimeGIF
	case govips.ImageTypeTIFF:
		return core.MimeTIFF
	case govips.ImageTypeHEIF:
		if fallback == core.MimeHEIC {
			return core.MimeHEIC
		}
		return core.MimeHEIF
	default:
		return fallback
	}
}

// compile-time interface checks
var _ core.BitmapDecoderFactory = (*Backend)(nil)
