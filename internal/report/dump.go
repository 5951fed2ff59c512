package report

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Element type tags recorded in the dump manifest.
const (
	ElemU8    = "u8"
	ElemU32LE = "u32_le"
	ElemF32LE = "f32_le"
)

// ErrDumpDir is returned for an empty dump directory.
var ErrDumpDir = errors.New("report: empty debug dump directory")

// DumpFile is one manifest entry.
type DumpFile struct {
	Name      string `json:"-"`
	Path      string `json:"path"`
	ElemType  string `json:"elem_type"`
	ElemCount int    `json:"elem_count"`
}

// Dumper writes raw little-endian buffers as <dir>/<name>.<suffix>.bin and
// records them in a manifest.
type Dumper struct {
	dir      string
	suffix   string
	manifest []DumpFile
}

// NewDumper creates dir if needed. suffix is typically the backend name.
func NewDumper(dir, suffix string) (*Dumper, error) {
	if dir == "" {
		return nil, ErrDumpDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return &Dumper{dir: abs, suffix: suffix}, nil
}

// Dir returns the absolute dump directory.
func (d *Dumper) Dir() string { return d.dir }

// Manifest returns the entries written so far, in write order.
func (d *Dumper) Manifest() []DumpFile {
	return append([]DumpFile(nil), d.manifest...)
}

// U8 dumps bytes verbatim.
func (d *Dumper) U8(name string, data []byte) error {
	return d.write(name, ElemU8, len(data), data)
}

// U32 dumps vals as little-endian uint32.
func (d *Dumper) U32(name string, vals []uint32) error {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return d.write(name, ElemU32LE, len(vals), buf)
}

// F32 dumps vals as little-endian IEEE-754 float32.
func (d *Dumper) F32(name string, vals []float32) error {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return d.write(name, ElemF32LE, len(vals), buf)
}

func (d *Dumper) write(name, elemType string, count int, data []byte) error {
	path := filepath.Join(d.dir, name+"."+d.suffix+".bin")
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // dumps are meant to be readable
		return fmt.Errorf("report: dump %s: %w", name, err)
	}
	d.manifest = append(d.manifest, DumpFile{Name: name, Path: path, ElemType: elemType, ElemCount: count})
	return nil
}
