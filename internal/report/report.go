// Package report assembles the JSON result document of a run and writes
// raw debug dumps of intermediate buffers.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/pyramid"
)

// Document schema constants.
const (
	SchemaVersion = 1
	Engine        = "dssim-gpu-wgpu-ms"
	ScoreSource   = "gpu-multiscale-dssim"
	CommandName   = "dssimgpu"

	StatusOK    = "ok"
	StatusError = "error"
)

// Document is the JSON result document.
type Document struct {
	SchemaVersion int                 `json:"schema_version"`
	Engine        string              `json:"engine"`
	Status        string              `json:"status"`
	Input         Paths               `json:"input"`
	DecodedInput  *DecodedPair        `json:"decoded_input,omitempty"`
	Command       string              `json:"command"`
	Version       string              `json:"version"`
	Result        *Result             `json:"result,omitempty"`
	Adapter       string              `json:"adapter,omitempty"`
	Backend       string              `json:"backend,omitempty"`
	Profiling     *Profiling          `json:"profiling,omitempty"`
	DebugDumps    map[string]DumpFile `json:"debug_dumps,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Paths holds the absolute input paths.
type Paths struct {
	Image1 string `json:"image1"`
	Image2 string `json:"image2"`
}

// DecodedPair describes both decoded inputs.
type DecodedPair struct {
	Image1 DecodedInfo `json:"image1"`
	Image2 DecodedInfo `json:"image2"`
}

// DecodedInfo describes one decoded input.
type DecodedInfo struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
	Bytes    int `json:"bytes"`
}

// Result is the score section of a successful run.
type Result struct {
	ScoreSource  string      `json:"score_source"`
	ScoreText    string      `json:"score_text"`
	ScoreF64     float64     `json:"score_f64"`
	ScoreBitsU64 string      `json:"score_bits_u64"`
	ComparedPath string      `json:"compared_path"`
	GPUScales    []Scale     `json:"gpu_scales"`
	Aggregation  Aggregation `json:"aggregation"`
}

// Scale is one pyramid level.
type Scale struct {
	Level        int     `json:"level"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Metric       string  `json:"metric"`
	WindowRadius int     `json:"window_radius"`
	WindowSize   int     `json:"window_size"`
	WindowType   string  `json:"window_type"`
	QScale       uint32  `json:"qscale"`
	Weight       float64 `json:"weight"`
	SumU64       uint64  `json:"sum_u64"`
	ElemCount    int     `json:"elem_count"`
	MeanDssimF64 float64 `json:"mean_dssim_f64"`
	SSIMScoreF64 float64 `json:"ssim_score_f64"`
}

// Aggregation describes how level scores were combined.
type Aggregation struct {
	Method          string  `json:"method"`
	UsedScaleCount  int     `json:"used_scale_count"`
	WeightedSSIMF64 float64 `json:"weighted_ssim_f64"`
}

// Profiling holds run timings in milliseconds.
type Profiling struct {
	ShaderModuleMS  float64 `json:"create_shader_module_ms"`
	PipelineMS      float64 `json:"create_pipeline_ms"`
	DecodeToScoreMS float64 `json:"decode_done_to_score_ms"`
}

// NewProfiling converts durations to a Profiling section.
func NewProfiling(shaders, pipelines, decodeToScore time.Duration) *Profiling {
	return &Profiling{
		ShaderModuleMS:  ms(shaders),
		PipelineMS:      ms(pipelines),
		DecodeToScoreMS: ms(decodeToScore),
	}
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Input collects everything Build needs. Outputs and Err are mutually
// exclusive; a non-nil Err produces an error document.
type Input struct {
	Image1, Image2 string
	OutPath        string
	DebugDumpDir   string

	Decoded1, Decoded2 *DecodedInfo

	Kernel    kernel.Config
	Outputs   *pyramid.MultiScaleOutputs
	Adapter   string
	Version   string
	Profiling *Profiling
	Dumps     []DumpFile

	Err error
}

// Build assembles the document for in.
func Build(in Input) *Document {
	abs1, abs2 := absPath(in.Image1), absPath(in.Image2)
	doc := &Document{
		SchemaVersion: SchemaVersion,
		Engine:        Engine,
		Input:         Paths{Image1: abs1, Image2: abs2},
		Command:       command(abs1, abs2, in.OutPath, in.DebugDumpDir),
		Version:       in.Version,
		Adapter:       in.Adapter,
		Profiling:     in.Profiling,
	}
	if in.Decoded1 != nil && in.Decoded2 != nil {
		doc.DecodedInput = &DecodedPair{Image1: *in.Decoded1, Image2: *in.Decoded2}
	}
	if in.Err != nil || in.Outputs == nil {
		doc.Status = StatusError
		if in.Err != nil {
			doc.Error = in.Err.Error()
		} else {
			doc.Error = "no result"
		}
		return doc
	}

	out := in.Outputs
	doc.Status = StatusOK
	doc.Backend = out.Backend
	doc.Result = &Result{
		ScoreSource:  ScoreSource,
		ScoreText:    ScoreText(out.Score),
		ScoreF64:     out.Score,
		ScoreBitsU64: ScoreBits(out.Score),
		ComparedPath: abs2,
		GPUScales:    make([]Scale, 0, len(out.Scales)),
		Aggregation: Aggregation{
			Method:          pyramid.AggregationMethod,
			UsedScaleCount:  len(out.Scales),
			WeightedSSIMF64: out.WeightedSSIM,
		},
	}
	metric := Metric(in.Kernel)
	for i := range out.Scales {
		s := &out.Scales[i]
		doc.Result.GPUScales = append(doc.Result.GPUScales, Scale{
			Level:        s.Level,
			Width:        s.Width,
			Height:       s.Height,
			Metric:       metric,
			WindowRadius: in.Kernel.Window.Radius(),
			WindowSize:   in.Kernel.Window.Size(),
			WindowType:   in.Kernel.Window.TypeName(),
			QScale:       in.Kernel.QScale,
			Weight:       s.Weight,
			SumU64:       s.Sum,
			ElemCount:    s.ElemCount(),
			MeanDssimF64: s.MeanDssim,
			SSIMScoreF64: s.Score,
		})
	}
	if len(in.Dumps) > 0 {
		doc.DebugDumps = make(map[string]DumpFile, len(in.Dumps))
		for _, d := range in.Dumps {
			doc.DebugDumps[d.Name] = d
		}
	}
	return doc
}

// Metric names the per-pixel metric of cfg, e.g. "dssim_gaussian5x5_luma".
func Metric(cfg kernel.Config) string {
	return "dssim_" + cfg.Window.String() + "_" + cfg.ColorSpace.String()
}

// ScoreText formats a score with 8 decimals.
func ScoreText(score float64) string {
	return strconv.FormatFloat(score, 'f', 8, 64)
}

// ScoreBits returns the IEEE-754 bit pattern of score as 0x-prefixed hex.
func ScoreBits(score float64) string {
	return fmt.Sprintf("0x%016X", math.Float64bits(score))
}

func command(abs1, abs2, out, debugDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q %q", CommandName, abs1, abs2)
	if out != "" {
		fmt.Fprintf(&b, " --out %q", absPath(out))
	}
	if debugDir != "" {
		fmt.Fprintf(&b, " --debug-dump-dir %q", absPath(debugDir))
	}
	return b.String()
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Marshal encodes doc as indented JSON with a trailing newline.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile writes doc to path, creating parent directories. The file is
// replaced atomically so a reader never sees a partial document.
func WriteFile(path string, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
