package decoder

import (
	"github.com/Skryldev/image-loader/core"
)

// DecodeFunc decodes the source with opts. When opts.Region is set only that
// rectangle of the stored image is decoded.
type DecodeFunc func(opts *core.DecodeOptions) (*core.Bitmap, error)

// RealDecode picks the sample size and, when the resize crops and the format
// allows it, the source region to decode. The resize is resolved against the
// displayed size of the image and mapped back onto the stored pixels. Pooled
// bitmaps are offered to decode through Loader.DecodeReusing.
func RealDecode(l *core.Loader, rc *core.RequestContext, from core.DataFrom, info core.ImageInfo,
	regionSupported bool, decode DecodeFunc) (*core.BitmapDecodeResult, error) {
	req := rc.Request()
	imageSize := info.Size()
	applied := AppliedSize(imageSize, info.ExifOrientation)
	resize := core.ResolveResize(req, rc.ResizeSize(), applied.Width, applied.Height)
	added := addToResize(resize, info.ExifOrientation)
	mapping := core.CalculateResizeMapping(imageSize.Width, imageSize.Height,
		added.Width, added.Height, added.Precision, added.Scale)
	smaller := added.Precision == core.PrecisionSmallerSize

	opts := &core.DecodeOptions{Config: req.BitmapConfig()}
	var transformed []string
	useRegion := regionSupported &&
		added.ShouldClip(imageSize.Width, imageSize.Height) &&
		added.Precision != core.PrecisionLessPixels &&
		core.IsSupportRegion(info.MimeType) &&
		mapping != nil
	if useRegion {
		src := mapping.SrcRect
		regionSize := core.Size{Width: src.Dx(), Height: src.Dy()}
		target := core.Size{Width: mapping.DestRect.Dx(), Height: mapping.DestRect.Dy()}
		opts.SampleSize = core.CalculateSampleSizeForRegion(regionSize, target, smaller, info.MimeType, imageSize)
		if opts.SampleSize > 1 {
			transformed = append(transformed, core.InSampledTransformed(opts.SampleSize))
		}
		transformed = append(transformed, core.SubsamplingTransformed(src))
		opts.Region = &src
	} else {
		target := core.Size{Width: added.Width, Height: added.Height}
		opts.SampleSize = core.CalculateSampleSize(imageSize, target, smaller, info.MimeType)
		if opts.SampleSize > 1 {
			transformed = append(transformed, core.InSampledTransformed(opts.SampleSize))
		}
	}

	bitmap, err := l.DecodeReusing(opts, imageSize, info.MimeType, req.DisallowReuseBitmap(), decode)
	if err != nil {
		return nil, err
	}
	l.Logger().Debug("decode.done", "key", rc.CacheKey(), "bitmap", bitmap.String(),
		"info", info.String(), "sample_size", opts.SampleSize, "region", opts.Region != nil)
	return &core.BitmapDecodeResult{
		Bitmap:          bitmap,
		ImageInfo:       info,
		DataFrom:        from,
		TransformedList: transformed,
	}, nil
}

// AppliedExifOrientation rotates or flips the bitmap upright and records the
// displayed size in the image info. Results that are already oriented, or
// carry no orientation, are returned unchanged.
func AppliedExifOrientation(l *core.Loader, rc *core.RequestContext, res *core.BitmapDecodeResult) *core.BitmapDecodeResult {
	orientation := res.ImageInfo.ExifOrientation
	if core.HasTransformed(res.TransformedList, "ExifOrientationTransformed(") ||
		orientation == core.OrientationUndefined || orientation == core.OrientationNormal {
		return res
	}
	oriented := orient(res.Bitmap.Image(), orientation)
	if oriented == nil {
		return res
	}

	req := rc.Request()
	pool := l.BitmapPool()
	b := oriented.Bounds()
	out := pool.GetOrCreate(b.Dx(), b.Dy(), res.Bitmap.Config(), req.DisallowReuseBitmap())
	core.DrawScaled(out, oriented, b)
	pool.Free(res.Bitmap, req.DisallowReuseBitmap())

	info := res.ImageInfo
	size := AppliedSize(info.Size(), orientation)
	info.Width, info.Height = size.Width, size.Height
	l.Logger().Debug("decode.exif_oriented", "key", rc.CacheKey(), "orientation", orientation, "bitmap", out.String())
	return res.NewResult(
		core.WithBitmap(out),
		core.WithImageInfo(info),
		core.AddTransformed(core.ExifOrientationTransformed(orientation)),
	)
}

// AppliedResize brings the bitmap to the resolved resize. LESS_PIXELS only
// scales down by a power of two; other precisions crop and scale to the
// resize mapping when the bitmap does not already fit.
func AppliedResize(l *core.Loader, rc *core.RequestContext, res *core.BitmapDecodeResult) *core.BitmapDecodeResult {
	req := rc.Request()
	info := res.ImageInfo
	resize := core.ResolveResize(req, rc.ResizeSize(), info.Width, info.Height)
	input := res.Bitmap
	pool := l.BitmapPool()
	disallow := req.DisallowReuseBitmap()

	var out *core.Bitmap
	switch {
	case resize.Precision == core.PrecisionLessPixels:
		target := core.Size{Width: resize.Width, Height: resize.Height}
		ss := core.CalculateSampleSize(input.Size(), target, false, "")
		if ss != 1 {
			w := max(input.Width()/ss, 1)
			h := max(input.Height()/ss, 1)
			out = pool.GetOrCreate(w, h, input.Config(), disallow)
			core.DrawScaled(out, input.Image(), input.Image().Bounds())
		}
	case resize.ShouldClip(input.Width(), input.Height()):
		m := core.CalculateResizeMapping(input.Width(), input.Height(),
			resize.Width, resize.Height, resize.Precision, resize.Scale)
		if m != nil {
			out = pool.GetOrCreate(m.NewWidth, m.NewHeight, input.Config(), disallow)
			core.DrawScaled(out, input.Image(), m.SrcRect.Add(input.Image().Bounds().Min))
		}
	}
	if out == nil {
		return res
	}
	pool.Free(input, disallow)
	l.Logger().Debug("decode.resized", "key", rc.CacheKey(), "resize", resize.Key(), "bitmap", out.String())
	return res.NewResult(core.WithBitmap(out), core.AddTransformed(core.ResizeTransformed(resize)))
}
