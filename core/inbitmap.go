package core

import "strings"

// Image MIME types known to the loader.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
	MimeGIF  = "image/gif"
	MimeBMP  = "image/bmp"
	MimeTIFF = "image/tiff"
	MimeHEIC = "image/heic"
	MimeHEIF = "image/heif"
)

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "image/jpg" {
		return MimeJPEG
	}
	return mime
}

// IsSupportInBitmap reports whether a decode of mime at sampleSize may write
// into a reused bitmap.
func IsSupportInBitmap(mime string, sampleSize int) bool {
	switch normalizeMime(mime) {
	case MimeJPEG, MimePNG, MimeWebP, MimeBMP, MimeTIFF:
		return true
	case MimeGIF:
		return sampleSize <= 1
	case MimeHEIC:
		return false
	case MimeHEIF:
		return true
	}
	return false
}

// IsSupportInBitmapForRegion reports whether a region decode of mime may
// write into a reused bitmap.
func IsSupportInBitmapForRegion(mime string) bool {
	switch normalizeMime(mime) {
	case MimeJPEG, MimePNG, MimeWebP, MimeHEIC, MimeHEIF:
		return true
	}
	return false
}

// IsSupportRegion reports whether mime can be decoded region by region.
func IsSupportRegion(mime string) bool {
	switch normalizeMime(mime) {
	case MimeJPEG, MimePNG, MimeWebP, MimeTIFF:
		return true
	}
	return false
}
