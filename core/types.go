package core

import (
	"fmt"
	"image"
)

// ── Enums ─────────────────────────────────────────────────────────────────────

// Depth limits how far a request may go to find data.
type Depth int

const (
	DepthNetwork Depth = iota // any source
	DepthLocal                // no network; download cache and local files only
	DepthMemory               // memory cache only
)

func (d Depth) String() string {
	switch d {
	case DepthNetwork:
		return "NETWORK"
	case DepthLocal:
		return "LOCAL"
	case DepthMemory:
		return "MEMORY"
	}
	return fmt.Sprintf("Depth(%d)", int(d))
}

// CachePolicy controls whether a cache may be read and/or written.
type CachePolicy int

const (
	CacheEnabled CachePolicy = iota
	CacheDisabled
	CacheReadOnly
	CacheWriteOnly
)

// ReadEnabled reports whether the cache may be read.
func (c CachePolicy) ReadEnabled() bool { return c == CacheEnabled || c == CacheReadOnly }

// WriteEnabled reports whether the cache may be written.
func (c CachePolicy) WriteEnabled() bool { return c == CacheEnabled || c == CacheWriteOnly }

func (c CachePolicy) String() string {
	switch c {
	case CacheEnabled:
		return "ENABLED"
	case CacheDisabled:
		return "DISABLED"
	case CacheReadOnly:
		return "READ_ONLY"
	case CacheWriteOnly:
		return "WRITE_ONLY"
	}
	return fmt.Sprintf("CachePolicy(%d)", int(c))
}

// Precision controls how closely the decoded bitmap must match the resize size.
type Precision int

const (
	// PrecisionLessPixels keeps the aspect ratio and only guarantees the pixel
	// count does not exceed the resize area.
	PrecisionLessPixels Precision = iota
	// PrecisionSmallerSize keeps the aspect ratio and guarantees neither side
	// exceeds the resize size.
	PrecisionSmallerSize
	// PrecisionSameAspectRatio crops to the resize aspect ratio.
	PrecisionSameAspectRatio
	// PrecisionExactly produces exactly the resize size.
	PrecisionExactly
)

func (p Precision) String() string {
	switch p {
	case PrecisionLessPixels:
		return "LESS_PIXELS"
	case PrecisionSmallerSize:
		return "SMALLER_SIZE"
	case PrecisionSameAspectRatio:
		return "SAME_ASPECT_RATIO"
	case PrecisionExactly:
		return "EXACTLY"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// Scale selects which part of the image survives a crop.
type Scale int

const (
	ScaleStartCrop Scale = iota
	ScaleCenterCrop
	ScaleEndCrop
	ScaleFill
)

func (s Scale) String() string {
	switch s {
	case ScaleStartCrop:
		return "START_CROP"
	case ScaleCenterCrop:
		return "CENTER_CROP"
	case ScaleEndCrop:
		return "END_CROP"
	case ScaleFill:
		return "FILL"
	}
	return fmt.Sprintf("Scale(%d)", int(s))
}

// DataFrom records where the final bytes or bitmap came from.
type DataFrom int

const (
	DataFromNetwork DataFrom = iota
	DataFromLocal
	DataFromMemory
	DataFromMemoryCache
	DataFromResultCache
	DataFromDownloadCache
)

func (d DataFrom) String() string {
	switch d {
	case DataFromNetwork:
		return "NETWORK"
	case DataFromLocal:
		return "LOCAL"
	case DataFromMemory:
		return "MEMORY"
	case DataFromMemoryCache:
		return "MEMORY_CACHE"
	case DataFromResultCache:
		return "RESULT_CACHE"
	case DataFromDownloadCache:
		return "DOWNLOAD_CACHE"
	}
	return fmt.Sprintf("DataFrom(%d)", int(d))
}

// PixelConfig is the in-memory layout of a Bitmap.
type PixelConfig int

const (
	ConfigRGBA   PixelConfig = iota // *image.RGBA, premultiplied 8-bit
	ConfigNRGBA                     // *image.NRGBA
	ConfigGray                      // *image.Gray
	ConfigRGBA64                    // *image.RGBA64
)

// BytesPerPixel returns the storage cost of one pixel.
func (c PixelConfig) BytesPerPixel() int {
	switch c {
	case ConfigGray:
		return 1
	case ConfigRGBA64:
		return 8
	}
	return 4
}

func (c PixelConfig) String() string {
	switch c {
	case ConfigRGBA:
		return "RGBA"
	case ConfigNRGBA:
		return "NRGBA"
	case ConfigGray:
		return "GRAY"
	case ConfigRGBA64:
		return "RGBA64"
	}
	return fmt.Sprintf("PixelConfig(%d)", int(c))
}

// Exif orientation tag values.
const (
	OrientationUndefined      = 0
	OrientationNormal         = 1
	OrientationFlipHorizontal = 2
	OrientationRotate180      = 3
	OrientationFlipVertical   = 4
	OrientationTranspose      = 5
	OrientationRotate90       = 6
	OrientationTransverse     = 7
	OrientationRotate270      = 8
)

// ── Value types ───────────────────────────────────────────────────────────────

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// IsEmpty reports whether either side is non-positive.
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// ImageInfo describes the source image, independent of how it was decoded.
type ImageInfo struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	MimeType        string `json:"mimeType"`
	ExifOrientation int    `json:"exifOrientation"`
}

// Size returns the image dimensions.
func (i ImageInfo) Size() Size { return Size{Width: i.Width, Height: i.Height} }

func (i ImageInfo) String() string {
	return fmt.Sprintf("ImageInfo(%dx%d,%s,%d)", i.Width, i.Height, i.MimeType, i.ExifOrientation)
}

// DecodeOptions is handed to decoders and result codecs.
type DecodeOptions struct {
	SampleSize int
	Config     PixelConfig
	// InBitmap, when set, must receive the decoded pixels. Decoders return
	// ErrInBitmap when the decoded size or config does not fit.
	InBitmap *Bitmap
	// Region restricts decoding to a sub-rectangle of the source image.
	Region *image.Rectangle
}
