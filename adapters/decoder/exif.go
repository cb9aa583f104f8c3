package decoder

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/Skryldev/image-loader/core"
)

func carriesExif(mime string) bool {
	return mime == core.MimeJPEG || mime == core.MimeTIFF
}

// readOrientation returns the exif orientation tag, or undefined when the
// data has no readable exif block.
func readOrientation(ds core.DataSource) int {
	r, err := ds.Open()
	if err != nil {
		return core.OrientationUndefined
	}
	defer r.Close()
	x, err := exif.Decode(r)
	if err != nil {
		return core.OrientationUndefined
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return core.OrientationUndefined
	}
	v, err := tag.Int(0)
	if err != nil || v < core.OrientationNormal || v > core.OrientationRotate270 {
		return core.OrientationUndefined
	}
	return v
}

// swapsSides reports whether orientation turns the image by 90 degrees.
func swapsSides(orientation int) bool {
	switch orientation {
	case core.OrientationTranspose, core.OrientationRotate90, core.OrientationTransverse, core.OrientationRotate270:
		return true
	}
	return false
}

// AppliedSize is the displayed size of an image of size s stored with
// orientation.
func AppliedSize(s core.Size, orientation int) core.Size {
	if swapsSides(orientation) {
		return core.Size{Width: s.Height, Height: s.Width}
	}
	return s
}

// addToResize maps a resize expressed in displayed coordinates back onto the
// stored pixel grid.
func addToResize(r core.Resize, orientation int) core.Resize {
	if swapsSides(orientation) {
		r.Width, r.Height = r.Height, r.Width
	}
	return r
}

// orient applies orientation to img. It returns nil for orientations that
// need no pixel change.
func orient(img image.Image, orientation int) *image.NRGBA {
	switch orientation {
	case core.OrientationFlipHorizontal:
		return imaging.FlipH(img)
	case core.OrientationRotate180:
		return imaging.Rotate180(img)
	case core.OrientationFlipVertical:
		return imaging.FlipV(img)
	case core.OrientationTranspose:
		return imaging.Transpose(img)
	case core.OrientationRotate90:
		return imaging.Rotate270(img)
	case core.OrientationTransverse:
		return imaging.Transverse(img)
	case core.OrientationRotate270:
		return imaging.Rotate90(img)
	}
	return nil
}
