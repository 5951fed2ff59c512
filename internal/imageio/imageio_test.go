package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: uint8(x * 10), B: uint8(y * 10), A: 255})
		}
	}
	return img
}

func TestDecodeFormats(t *testing.T) {
	src := checker(6, 4)

	tests := []struct {
		name   string
		format string
		encode func(*bytes.Buffer) error
	}{
		{"png", "png", func(b *bytes.Buffer) error { return png.Encode(b, src) }},
		{"bmp", "bmp", func(b *bytes.Buffer) error { return bmp.Encode(b, src) }},
		{"tiff", "tiff", func(b *bytes.Buffer) error { return tiff.Encode(b, src, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.encode(&buf); err != nil {
				t.Fatalf("encode: %v", err)
			}
			d, err := DecodeReader(&buf)
			if err != nil {
				t.Fatalf("DecodeReader: %v", err)
			}
			if d.Width != 6 || d.Height != 4 || d.Channels != 4 || d.Format != tt.format {
				t.Fatalf("got %dx%dx%d %q", d.Width, d.Height, d.Channels, d.Format)
			}
			if !bytes.Equal(d.Pix, src.Pix) {
				t.Error("lossless round trip changed pixels")
			}
		})
	}
}

func TestDecodePaletteExpands(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 3, 3), palette.Plan9)
	img.SetColorIndex(1, 1, 3)
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := DecodeReader(&buf)
	if err != nil {
		t.Fatalf("DecodeReader: %v", err)
	}
	if d.Bytes() != 3*3*4 {
		t.Fatalf("bytes = %d, want 36", d.Bytes())
	}
	for i := 3; i < len(d.Pix); i += 4 {
		if d.Pix[i] != 255 {
			t.Fatalf("alpha at %d = %d, want 255", i, d.Pix[i])
		}
	}
}

func TestFromImageGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 1))
	g.SetGray(0, 0, color.Gray{Y: 10})
	g.SetGray(1, 0, color.Gray{Y: 200})

	d := FromImage(g)
	want := []byte{10, 10, 10, 255, 200, 200, 200, 255}
	if !bytes.Equal(d.Pix, want) {
		t.Errorf("Pix = %v, want %v", d.Pix, want)
	}
}

func TestFromImageStraightAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	d := FromImage(img)
	want := []byte{200, 100, 50, 128}
	if !bytes.Equal(d.Pix, want) {
		t.Errorf("Pix = %v, want %v (straight alpha)", d.Pix, want)
	}
	d.Pix[0] = 0
	if img.Pix[0] != 200 {
		t.Error("FromImage aliases the source buffer")
	}
}

func TestFromImageSubImage(t *testing.T) {
	src := checker(8, 8)
	sub := src.SubImage(image.Rect(2, 3, 5, 7))

	d := FromImage(sub)
	if d.Width != 3 || d.Height != 4 {
		t.Fatalf("got %dx%d, want 3x4", d.Width, d.Height)
	}
	if got, want := d.NRGBA().NRGBAAt(0, 0), src.NRGBAAt(2, 3); got != want {
		t.Errorf("origin pixel = %v, want %v", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.png")},
		{"garbage", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.path); !errors.Is(err, ErrDecode) {
				t.Errorf("got %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, checker(5, 5)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	d, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Width != 5 || d.Height != 5 || len(d.Pix) != 100 {
		t.Errorf("got %dx%d with %d bytes", d.Width, d.Height, len(d.Pix))
	}
}
