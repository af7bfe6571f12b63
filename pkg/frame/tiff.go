package frame

import (
	"image"
	"image/color"
	"math"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"
)

// Gray16 converts the frame to a 16-bit grayscale image. Samples are scaled so
// that [lo, hi] maps onto the full 16-bit range; values outside are clipped.
func (f *Frame) Gray16(lo, hi float64) *image.Gray16 {
	rows, cols := f.m.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	scale := 0.0
	if hi > lo {
		scale = math.MaxUint16 / (hi - lo)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := (f.m.At(r, c) - lo) * scale
			v = math.Max(0, math.Min(math.MaxUint16, v))
			img.SetGray16(c, r, color.Gray16{Y: uint16(math.Round(v))})
		}
	}
	return img
}

// WriteTIFF stores the frame as a 16-bit TIFF, scaled between its own minimum
// and maximum.
func (f *Frame) WriteTIFF(path string) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range f.Data() {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	fp, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", path)
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(fp)

	if err := tiff.Encode(fp, f.Gray16(lo, hi), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode %s", path)
	}
	return nil
}

// ReadTIFF loads a single-channel TIFF as a frame of raw 16-bit counts.
func ReadTIFF(path string) (*Frame, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(fp)

	img, err := tiff.Decode(fp)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode %s", path)
	}

	b := img.Bounds()
	data := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			data = append(data, float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y))
		}
	}
	return New(b.Dy(), b.Dx(), data)
}
