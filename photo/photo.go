// Package photo defines the image value passed between the booth stages and
// the conversions at its boundaries.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the pixel count of an image Decode will accept.
const MaxPixels = 40_000_000

var (
	// ErrEmpty is returned when an image has no pixels.
	ErrEmpty = errors.New("photo: empty image")
	// ErrTooLarge is returned when the header of an encoded image declares
	// more than MaxPixels pixels.
	ErrTooLarge = errors.New("photo: image too large")
)

// Image is an in-memory RGB(A) raster. The zero value is empty.
type Image struct {
	px *image.NRGBA
}

// FromImage copies src into a new Image.
func FromImage(src image.Image) Image {
	if src == nil {
		return Image{}
	}
	return Image{px: imaging.Clone(src)}
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) Image {
	return Image{px: imaging.New(w, h, c)}
}

// Decode reads an encoded photo (PNG, JPEG, GIF, BMP, WebP). EXIF orientation
// is applied. When maxSide is positive the image is shrunk so that its longest
// side does not exceed maxSide. Images whose header declares more than
// MaxPixels pixels are rejected with ErrTooLarge before any pixel is decoded.
func Decode(r io.Reader, maxSide int) (Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, fmt.Errorf("photo: read: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("photo: decode: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, ErrEmpty
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Image{}, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("photo: decode: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return Image{}, ErrEmpty
	}
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		return Image{px: imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)}, nil
	}
	return FromImage(img), nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte, maxSide int) (Image, error) {
	return Decode(bytes.NewReader(data), maxSide)
}

// Empty reports whether the image has no pixels.
func (i Image) Empty() bool {
	return i.px == nil || i.px.Bounds().Empty()
}

// Width returns the width in pixels.
func (i Image) Width() int {
	if i.px == nil {
		return 0
	}
	return i.px.Bounds().Dx()
}

// Height returns the height in pixels.
func (i Image) Height() int {
	if i.px == nil {
		return 0
	}
	return i.px.Bounds().Dy()
}

// NRGBA returns a copy of the pixels. Callers may draw on the copy freely.
func (i Image) NRGBA() *image.NRGBA {
	if i.px == nil {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	return imaging.Clone(i.px)
}

// Pix returns a copy of the pixel buffer in NRGBA order.
func (i Image) Pix() []byte {
	if i.px == nil {
		return nil
	}
	return bytes.Clone(i.px.Pix)
}

// At returns the color at (x, y).
func (i Image) At(x, y int) color.NRGBA {
	if i.px == nil {
		return color.NRGBA{}
	}
	return i.px.NRGBAAt(x, y)
}

// Equal reports whether both images have the same size and pixels.
func (i Image) Equal(other Image) bool {
	if i.Width() != other.Width() || i.Height() != other.Height() {
		return false
	}
	if i.Empty() || other.Empty() {
		return i.Empty() == other.Empty()
	}
	return bytes.Equal(i.px.Pix, other.px.Pix)
}

// WritePNG encodes the image losslessly to w.
func (i Image) WritePNG(w io.Writer) error {
	if i.Empty() {
		return ErrEmpty
	}
	if err := png.Encode(w, i.px); err != nil {
		return fmt.Errorf("photo: encode png: %w", err)
	}
	return nil
}

// PNG returns the PNG encoding of the image.
func (i Image) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := i.WritePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
