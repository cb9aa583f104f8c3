package core

import (
	"context"
	"fmt"
	"image"
	"math"
)

// ── Size resolution ───────────────────────────────────────────────────────────

// SizeResolver yields the resize size for a request. It may block, for example
// until a view has been laid out.
type SizeResolver interface {
	Size(ctx context.Context) (Size, error)
	Key() string
}

// FixedSizeResolver always returns the same size.
type FixedSizeResolver struct{ Value Size }

// FixedSize returns a resolver for w x h.
func FixedSize(w, h int) FixedSizeResolver { return FixedSizeResolver{Value: Size{Width: w, Height: h}} }

func (r FixedSizeResolver) Size(context.Context) (Size, error) { return r.Value, nil }
func (r FixedSizeResolver) Key() string                        { return "Fixed(" + r.Value.String() + ")" }

// DisplaySizeResolver resolves to the configured display size.
type DisplaySizeResolver struct{ Display Size }

func (r DisplaySizeResolver) Size(context.Context) (Size, error) { return r.Display, nil }
func (r DisplaySizeResolver) Key() string                        { return "Display(" + r.Display.String() + ")" }

// ── Deciders ──────────────────────────────────────────────────────────────────

// PrecisionDecider picks a Precision for a given image and resize size.
type PrecisionDecider interface {
	Get(imageWidth, imageHeight, resizeWidth, resizeHeight int) Precision
	Key() string
}

// ScaleDecider picks a Scale for a given image and resize size.
type ScaleDecider interface {
	Get(imageWidth, imageHeight, resizeWidth, resizeHeight int) Scale
	Key() string
}

// FixedPrecisionDecider always returns Precision.
type FixedPrecisionDecider struct{ Precision Precision }

// FixedPrecision returns a decider that always answers p.
func FixedPrecision(p Precision) FixedPrecisionDecider { return FixedPrecisionDecider{Precision: p} }

func (d FixedPrecisionDecider) Get(_, _, _, _ int) Precision { return d.Precision }
func (d FixedPrecisionDecider) Key() string                  { return "Fixed(" + d.Precision.String() + ")" }

// LongImageClipPrecisionDecider uses Precision for long images and Other for
// everything else.
type LongImageClipPrecisionDecider struct {
	Precision Precision
	Other     Precision
	Decider   LongImageDecider
}

// LongImageClipPrecision returns the usual configuration: SAME_ASPECT_RATIO
// for long images, LESS_PIXELS otherwise.
func LongImageClipPrecision() LongImageClipPrecisionDecider {
	return LongImageClipPrecisionDecider{
		Precision: PrecisionSameAspectRatio,
		Other:     PrecisionLessPixels,
		Decider:   DefaultLongImageDecider(),
	}
}

func (d LongImageClipPrecisionDecider) Get(iw, ih, rw, rh int) Precision {
	if d.Decider.IsLongImage(iw, ih, rw, rh) {
		return d.Precision
	}
	return d.Other
}

func (d LongImageClipPrecisionDecider) Key() string {
	return fmt.Sprintf("LongImageClip(%s,%s,%s)", d.Precision, d.Other, d.Decider.Key())
}

// FixedScaleDecider always returns Scale.
type FixedScaleDecider struct{ Scale Scale }

// FixedScale returns a decider that always answers s.
func FixedScale(s Scale) FixedScaleDecider { return FixedScaleDecider{Scale: s} }

func (d FixedScaleDecider) Get(_, _, _, _ int) Scale { return d.Scale }
func (d FixedScaleDecider) Key() string              { return "Fixed(" + d.Scale.String() + ")" }

// LongImageScaleDecider uses Long for long images and Other for everything else.
type LongImageScaleDecider struct {
	Long    Scale
	Other   Scale
	Decider LongImageDecider
}

// LongImageStartCrop returns START_CROP for long images, CENTER_CROP otherwise.
func LongImageStartCrop() LongImageScaleDecider {
	return LongImageScaleDecider{Long: ScaleStartCrop, Other: ScaleCenterCrop, Decider: DefaultLongImageDecider()}
}

func (d LongImageScaleDecider) Get(iw, ih, rw, rh int) Scale {
	if d.Decider.IsLongImage(iw, ih, rw, rh) {
		return d.Long
	}
	return d.Other
}

func (d LongImageScaleDecider) Key() string {
	return fmt.Sprintf("LongImage(%s,%s,%s)", d.Long, d.Other, d.Decider.Key())
}

// ── Resize ────────────────────────────────────────────────────────────────────

// Resize is the resolved resize target of one decode.
type Resize struct {
	Width     int
	Height    int
	Precision Precision
	Scale     Scale
}

// ResolveResize asks the request's deciders for the precision and scale of an
// image of iw x ih against size.
func ResolveResize(req *ImageRequest, size Size, iw, ih int) Resize {
	return Resize{
		Width:     size.Width,
		Height:    size.Height,
		Precision: req.PrecisionDecider().Get(iw, ih, size.Width, size.Height),
		Scale:     req.ScaleDecider().Get(iw, ih, size.Width, size.Height),
	}
}

func (r Resize) Key() string {
	return fmt.Sprintf("Resize(%dx%d,%s,%s)", r.Width, r.Height, r.Precision, r.Scale)
}

// ShouldClip reports whether an image of iw x ih must be cropped or stretched
// to satisfy r.
func (r Resize) ShouldClip(iw, ih int) bool {
	if r.Width <= 0 || r.Height <= 0 || iw <= 0 || ih <= 0 {
		return false
	}
	switch r.Precision {
	case PrecisionExactly:
		return iw != r.Width || ih != r.Height
	case PrecisionSameAspectRatio:
		return round(float64(iw)/float64(ih), 1) != round(float64(r.Width)/float64(r.Height), 1)
	}
	return false
}

// ResizeMapping maps a source rectangle of the image onto a bitmap of
// NewWidth x NewHeight.
type ResizeMapping struct {
	NewWidth  int
	NewHeight int
	SrcRect   image.Rectangle
	DestRect  image.Rectangle
}

// CalculateResizeMapping returns nil when any input is non-positive.
func CalculateResizeMapping(iw, ih, rw, rh int, precision Precision, scale Scale) *ResizeMapping {
	if iw <= 0 || ih <= 0 || rw <= 0 || rh <= 0 {
		return nil
	}
	src := image.Rect(0, 0, iw, ih)
	if scale != ScaleFill {
		target := float64(rw) / float64(rh)
		if float64(iw)/float64(ih) > target {
			cw := clampInt(int(math.Round(float64(ih)*target)), 1, iw)
			x := cropOffset(iw-cw, scale)
			src = image.Rect(x, 0, x+cw, ih)
		} else {
			ch := clampInt(int(math.Round(float64(iw)/target)), 1, ih)
			y := cropOffset(ih-ch, scale)
			src = image.Rect(0, y, iw, y+ch)
		}
	}

	var nw, nh int
	switch precision {
	case PrecisionExactly:
		nw, nh = rw, rh
	case PrecisionSameAspectRatio:
		s := math.Min(1, math.Min(float64(src.Dx())/float64(rw), float64(src.Dy())/float64(rh)))
		nw = clampInt(int(math.Round(float64(rw)*s)), 1, rw)
		nh = clampInt(int(math.Round(float64(rh)*s)), 1, rh)
	default:
		s := math.Min(1, math.Min(float64(rw)/float64(src.Dx()), float64(rh)/float64(src.Dy())))
		nw = clampInt(int(math.Round(float64(src.Dx())*s)), 1, src.Dx())
		nh = clampInt(int(math.Round(float64(src.Dy())*s)), 1, src.Dy())
	}
	return &ResizeMapping{
		NewWidth:  nw,
		NewHeight: nh,
		SrcRect:   src,
		DestRect:  image.Rect(0, 0, nw, nh),
	}
}

func cropOffset(excess int, scale Scale) int {
	switch scale {
	case ScaleStartCrop:
		return 0
	case ScaleEndCrop:
		return excess
	}
	return excess / 2
}

// ── Sampling ──────────────────────────────────────────────────────────────────

// SampledSize is the bitmap size produced by subsampling imageSize by
// sampleSize. PNG rounds down, other formats round up.
func SampledSize(imageSize Size, sampleSize int, mime string) Size {
	if sampleSize < 1 {
		sampleSize = 1
	}
	w := float64(imageSize.Width) / float64(sampleSize)
	h := float64(imageSize.Height) / float64(sampleSize)
	if normalizeMime(mime) == MimePNG {
		return Size{Width: int(math.Floor(w)), Height: int(math.Floor(h))}
	}
	return Size{Width: int(math.Ceil(w)), Height: int(math.Ceil(h))}
}

// SampledSizeForRegion is SampledSize for a region decode. Only a region that
// covers the whole image of a non-PNG rounds up.
func SampledSizeForRegion(regionSize Size, sampleSize int, mime string, imageSize Size) Size {
	if normalizeMime(mime) != MimePNG && regionSize == imageSize {
		return SampledSize(regionSize, sampleSize, MimeJPEG)
	}
	return SampledSize(regionSize, sampleSize, MimePNG)
}

// CalculateSampleSize doubles the sample size until the sampled bitmap fits
// targetSize: by side in smaller-size mode or for an empty target, by area
// otherwise. The result is then limited to twice the target on each side.
func CalculateSampleSize(imageSize, targetSize Size, smallerSizeMode bool, mime string) int {
	return calculateSampleSize(imageSize, targetSize, smallerSizeMode, func(n int) Size {
		return SampledSize(imageSize, n, mime)
	})
}

// CalculateSampleSizeForRegion is CalculateSampleSize for a region decode.
func CalculateSampleSizeForRegion(regionSize, targetSize Size, smallerSizeMode bool, mime string, imageSize Size) int {
	return calculateSampleSize(regionSize, targetSize, smallerSizeMode, func(n int) Size {
		return SampledSizeForRegion(regionSize, n, mime, imageSize)
	})
}

func calculateSampleSize(imageSize, targetSize Size, smallerSizeMode bool, sampled func(int) Size) int {
	if imageSize.IsEmpty() {
		return 1
	}
	sampleSize := 1
	for {
		s := sampled(sampleSize)
		var ok bool
		if targetSize.IsEmpty() || smallerSizeMode {
			ok = checkSideLimit(s, targetSize)
		} else {
			ok = s.Width*s.Height <= targetSize.Width*targetSize.Height
		}
		if ok || s.Width <= 1 && s.Height <= 1 {
			break
		}
		sampleSize *= 2
	}

	limit := Size{Width: targetSize.Width * 2, Height: targetSize.Height * 2}
	for {
		s := sampled(sampleSize)
		if checkSideLimit(s, limit) || s.Width <= 1 && s.Height <= 1 {
			return sampleSize
		}
		sampleSize *= 2
	}
}

func checkSideLimit(s, limit Size) bool {
	return (limit.Width <= 0 || s.Width <= limit.Width) && (limit.Height <= 0 || s.Height <= limit.Height)
}

// ── Long images ───────────────────────────────────────────────────────────────

// LongImageDecider decides whether an image is "long" compared to a target.
type LongImageDecider interface {
	IsLongImage(imageWidth, imageHeight, targetWidth, targetHeight int) bool
	Key() string
}

// RatioLongImageDecider compares aspect ratios rounded to two decimals. When
// both ratios lean the same way (or either is square) SameDirectionMultiple
// applies, otherwise NotSameDirectionMultiple.
type RatioLongImageDecider struct {
	SameDirectionMultiple    float64
	NotSameDirectionMultiple float64
}

// DefaultLongImageDecider returns the 2.5 / 5.0 decider.
func DefaultLongImageDecider() RatioLongImageDecider {
	return RatioLongImageDecider{SameDirectionMultiple: 2.5, NotSameDirectionMultiple: 5.0}
}

func (d RatioLongImageDecider) IsLongImage(iw, ih, tw, th int) bool {
	if iw <= 0 || ih <= 0 || tw <= 0 || th <= 0 {
		return false
	}
	imageRatio := round(float64(iw)/float64(ih), 2)
	targetRatio := round(float64(tw)/float64(th), 2)
	sameDirection := imageRatio == 1.0 || targetRatio == 1.0 ||
		(imageRatio > 1.0 && targetRatio > 1.0) ||
		(imageRatio < 1.0 && targetRatio < 1.0)
	multiple := d.NotSameDirectionMultiple
	if sameDirection {
		multiple = d.SameDirectionMultiple
	}
	if multiple <= 0 {
		return false
	}
	maxRatio := math.Max(imageRatio, targetRatio)
	minRatio := math.Min(imageRatio, targetRatio)
	return maxRatio >= minRatio*multiple
}

func (d RatioLongImageDecider) Key() string {
	return fmt.Sprintf("Default(%.1f,%.1f)", d.SameDirectionMultiple, d.NotSameDirectionMultiple)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
