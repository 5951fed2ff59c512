// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"encoding/binary"
	"testing"
)

func TestScaleParamsBytes(t *testing.T) {
	p := NewScaleParams(640, 480, QScale)
	b := p.Bytes()
	if len(b) != ParamsSize {
		t.Fatalf("len = %d, want %d", len(b), ParamsSize)
	}
	want := []uint32{640 * 480, 640, 480, QScale}
	for i, w := range want {
		if got := binary.LittleEndian.Uint32(b[i*4:]); got != w {
			t.Errorf("word %d = %d, want %d", i, got, w)
		}
	}
}

func TestDownsampleParamsBytes(t *testing.T) {
	b := NewDownsampleParams(17, 9, 8, 4).Bytes()
	want := []uint32{17, 9, 8, 4}
	for i, w := range want {
		if got := binary.LittleEndian.Uint32(b[i*4:]); got != w {
			t.Errorf("word %d = %d, want %d", i, got, w)
		}
	}
}

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		n    int
		x, y uint32
	}{
		{0, 1, 1},
		{1, 1, 1},
		{64, 1, 1},
		{65, 2, 1},
		{64 * 65535, 65535, 1},
		{64*65535 + 1, 65535, 2},
		{3840 * 2160, 65535, 2},
	}
	for _, tt := range tests {
		x, y := Workgroups(tt.n)
		if x != tt.x || y != tt.y {
			t.Errorf("Workgroups(%d) = (%d,%d), want (%d,%d)", tt.n, x, y, tt.x, tt.y)
		}
		if tt.n > 0 && int(x)*int(y)*WorkgroupSize < tt.n {
			t.Errorf("Workgroups(%d) covers only %d invocations", tt.n, int(x)*int(y)*WorkgroupSize)
		}
	}
}
