// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"errors"
	"testing"
)

func TestFromRGBA8RoundTrip(t *testing.T) {
	pix := make([]byte, 256*4)
	for i := range pix {
		pix[i] = byte(i / 4)
	}
	im, err := FromRGBA8(16, 16, pix)
	if err != nil {
		t.Fatalf("FromRGBA8: %v", err)
	}
	if im.Pix[4] != float32(1)/255 {
		t.Errorf("Pix[4] = %v, want 1/255", im.Pix[4])
	}
	back := im.RGBA8()
	for i := range pix {
		if back[i] != pix[i] {
			t.Fatalf("byte %d: got %d, want %d", i, back[i], pix[i])
		}
	}
}

func TestFromRGBA8Errors(t *testing.T) {
	if _, err := FromRGBA8(0, 4, nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("zero width: err = %v, want ErrEmptyImage", err)
	}
	if _, err := FromRGBA8(2, 2, make([]byte, 15)); !errors.Is(err, ErrPixelCount) {
		t.Errorf("short buffer: err = %v, want ErrPixelCount", err)
	}
}

func TestHalfSize(t *testing.T) {
	tests := []struct {
		w, h, ow, oh int
		wantErr      bool
	}{
		{16, 16, 8, 8, false},
		{17, 9, 8, 4, false},
		{2, 2, 1, 1, false},
		{3, 2, 1, 1, false},
		{1, 8, 0, 0, true},
		{8, 1, 0, 0, true},
	}
	for _, tt := range tests {
		ow, oh, err := HalfSize(tt.w, tt.h)
		if tt.wantErr {
			if !errors.Is(err, ErrDegenerateLevel) {
				t.Errorf("HalfSize(%d,%d) err = %v, want ErrDegenerateLevel", tt.w, tt.h, err)
			}
			continue
		}
		if err != nil || ow != tt.ow || oh != tt.oh {
			t.Errorf("HalfSize(%d,%d) = %d,%d,%v, want %d,%d", tt.w, tt.h, ow, oh, err, tt.ow, tt.oh)
		}
	}
}

func TestHalfSizeTerminates(t *testing.T) {
	for w := 2; w <= 300; w += 7 {
		for h := 2; h <= 300; h += 11 {
			cw, ch, steps := w, h, 0
			for cw >= 8 && ch >= 8 {
				nw, nh, err := HalfSize(cw, ch)
				if err != nil {
					t.Fatalf("HalfSize(%d,%d): %v", cw, ch, err)
				}
				if nw >= cw || nh >= ch {
					t.Fatalf("HalfSize(%d,%d) = %d,%d does not shrink", cw, ch, nw, nh)
				}
				cw, ch = nw, nh
				steps++
			}
			if steps > 64 {
				t.Fatalf("%dx%d took %d steps", w, h, steps)
			}
		}
	}
}
