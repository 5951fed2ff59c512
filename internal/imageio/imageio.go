// Package imageio decodes image files into flat straight-alpha RGBA8
// buffers.
//
// PNG, JPEG and GIF are decoded by the standard library; BMP, TIFF and WebP
// by golang.org/x/image. Palette, gray, 16-bit and alpha-less sources are
// normalised to 8-bit RGBA with straight (non-premultiplied) alpha.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"
)

// Channels is the channel count of every decoded image.
const Channels = 4

// ErrDecode is returned when a file cannot be decoded into RGBA8.
var ErrDecode = errors.New("imageio: decode failed")

// DecodedImage is a decoded image as interleaved RGBA8, row-major, with
// straight alpha. len(Pix) == Width*Height*Channels.
type DecodedImage struct {
	Width    int
	Height   int
	Channels int
	Format   string
	Pix      []byte
}

// Bytes returns the pixel buffer size.
func (d *DecodedImage) Bytes() int { return len(d.Pix) }

// Decode reads and decodes the image file at path.
func Decode(path string) (*DecodedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer f.Close()

	d, err := DecodeReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// DecodeReader decodes an image stream. The format is sniffed from its
// signature.
func DecodeReader(r io.Reader) (*DecodedImage, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	d := FromImage(img)
	if d.Width == 0 || d.Height == 0 {
		return nil, fmt.Errorf("%w: %s image has zero dimensions", ErrDecode, format)
	}
	d.Format = format
	return d, nil
}

// FromImage converts img to a DecodedImage. The result does not alias img.
func FromImage(img image.Image) *DecodedImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var nrgba *image.NRGBA
	if src, ok := img.(*image.NRGBA); ok && src.Rect.Min == (image.Point{}) && src.Stride == w*4 {
		nrgba = &image.NRGBA{Pix: append([]byte(nil), src.Pix[:w*h*4]...), Stride: w * 4, Rect: src.Rect}
	} else {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.Draw(nrgba, nrgba.Bounds(), img, b.Min, xdraw.Src)
	}
	return &DecodedImage{
		Width:    w,
		Height:   h,
		Channels: Channels,
		Pix:      nrgba.Pix,
	}
}

// NRGBA returns the image as an *image.NRGBA sharing d's pixels.
func (d *DecodedImage) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: d.Pix, Stride: d.Width * Channels, Rect: image.Rect(0, 0, d.Width, d.Height)}
}
