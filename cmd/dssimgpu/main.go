// Command dssimgpu scores the structural dissimilarity of two images with
// the multi-scale GPU DSSIM engine.
//
// Usage:
//
//	dssimgpu [flags] <image1> <image2>
//
// On success it prints "<score>\t<image2>" and exits 0; on failure it prints
// a one-line diagnostic to stderr and exits 1.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gogpu/dssim"
	"github.com/gogpu/dssim/internal/history"
	"github.com/gogpu/dssim/internal/imageio"
	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// config is the parsed command line.
type config struct {
	image1, image2 string
	out            string
	dumpDir        string
	historyDB      string
	backend        dssim.Backend
	window         kernel.Window
	color          kernel.ColorSpace
	levels         int
	cpuWorkers     int
	verbose        bool
	debug          bool
}

var errUsage = errors.New("usage: dssimgpu [flags] <image1> <image2>")

// parseArgs parses flags and exactly two positional paths, which may appear
// before, between or after the flags.
func parseArgs(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("dssimgpu", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.out, "out", "", "write the JSON result document to `path`")
	fs.StringVar(&cfg.dumpDir, "debug-dump-dir", "", "write raw intermediate buffers to `dir`")
	fs.StringVar(&cfg.historyDB, "history-db", "", "append the run to the SQLite database at `path`")
	backend := fs.String("backend", string(dssim.BackendGPU), "kernel backend: gpu or cpu")
	window := fs.String("window", kernel.Window5x5Gaussian.String(), "statistics window: gaussian5x5, gaussian3x3 or box3x3")
	color := fs.String("color", kernel.ColorLinearLuma.String(), "preprocess color space: luma or lab")
	fs.IntVar(&cfg.levels, "levels", 5, "maximum pyramid levels (1-5)")
	fs.IntVar(&cfg.cpuWorkers, "cpu-workers", 1, "goroutines for the cpu backend (0 = GOMAXPROCS)")
	fs.BoolVar(&cfg.verbose, "v", false, "log lifecycle events to stderr")
	fs.BoolVar(&cfg.debug, "vv", false, "log debug diagnostics to stderr")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", dssim.ErrPrecondition, err)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != 2 {
		return nil, fmt.Errorf("%w: %w", dssim.ErrPrecondition, errUsage)
	}
	cfg.image1, cfg.image2 = positional[0], positional[1]

	dumpSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "debug-dump-dir" {
			dumpSet = true
		}
	})
	if dumpSet && cfg.dumpDir == "" {
		return cfg, fmt.Errorf("%w: --debug-dump-dir requires a directory", dssim.ErrPrecondition)
	}

	var err error
	if cfg.backend, err = dssim.ParseBackend(*backend); err != nil {
		return cfg, err
	}
	if cfg.window, err = kernel.ParseWindow(*window); err != nil {
		return cfg, fmt.Errorf("%w: %w", dssim.ErrPrecondition, err)
	}
	if cfg.color, err = kernel.ParseColorSpace(*color); err != nil {
		return cfg, fmt.Errorf("%w: %w", dssim.ErrPrecondition, err)
	}
	return cfg, nil
}

func newLogger(cfg *config, stderr io.Writer) *slog.Logger {
	switch {
	case cfg.debug:
		return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case cfg.verbose:
		return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "dssimgpu: %v\n", err)
		if cfg != nil && cfg.out != "" {
			writeErrorDoc(cfg, nil, nil, err)
		}
		return 1
	}
	dssim.SetLogger(newLogger(cfg, stderr))

	var hist *history.Store
	if cfg.historyDB != "" {
		if hist, err = history.Open(cfg.historyDB); err != nil {
			dssim.Logger().Warn("dssimgpu: history disabled", "err", err)
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	res, info1, info2, dumps, err := compare(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "dssimgpu: %v\n", err)
		if cfg.out != "" {
			writeErrorDoc(cfg, info1, info2, err)
		}
		record(ctx, hist, cfg, nil, err)
		return 1
	}

	if cfg.out != "" {
		doc := report.Build(report.Input{
			Image1:       cfg.image1,
			Image2:       cfg.image2,
			OutPath:      cfg.out,
			DebugDumpDir: cfg.dumpDir,
			Decoded1:     info1,
			Decoded2:     info2,
			Kernel:       res.Kernel,
			Outputs:      res.MultiScaleOutputs,
			Adapter:      res.Adapter,
			Version:      dssim.Version,
			Profiling:    report.NewProfiling(res.ShaderTime, res.PipelineTime, res.Elapsed),
			Dumps:        dumps,
		})
		if err := report.WriteFile(cfg.out, doc); err != nil {
			err = &dssim.StageError{Stage: dssim.StageReport, Err: err}
			fmt.Fprintf(stderr, "dssimgpu: %v\n", err)
			record(ctx, hist, cfg, nil, err)
			return 1
		}
	}

	fmt.Fprintf(stdout, "%s\t%s\n", report.ScoreText(res.Score), cfg.image2)
	dssim.Logger().Info("dssimgpu: profiling",
		"create_shader_module", res.ShaderTime,
		"create_pipeline", res.PipelineTime,
		"decode_done_to_score", res.Elapsed)
	record(ctx, hist, cfg, res, nil)
	return 0
}

// compare decodes both inputs, runs the engine and writes debug dumps.
func compare(ctx context.Context, cfg *config) (*dssim.Result, *report.DecodedInfo, *report.DecodedInfo, []report.DumpFile, error) {
	img1, err := imageio.Decode(cfg.image1)
	if err != nil {
		return nil, nil, nil, nil, &dssim.StageError{Stage: dssim.StageDecode, Kind: dssim.ErrPrecondition, Err: err}
	}
	img2, err := imageio.Decode(cfg.image2)
	if err != nil {
		return nil, nil, nil, nil, &dssim.StageError{Stage: dssim.StageDecode, Kind: dssim.ErrPrecondition, Err: err}
	}
	info1, info2 := decodedInfo(img1), decodedInfo(img2)

	opts := []dssim.Option{
		dssim.WithBackend(cfg.backend),
		dssim.WithWindow(cfg.window),
		dssim.WithColorSpace(cfg.color),
		dssim.WithMaxLevels(cfg.levels),
		dssim.WithCPUWorkers(cfg.cpuWorkers),
	}
	var scale1 [2][]byte
	if cfg.dumpDir != "" {
		opts = append(opts,
			dssim.WithDebugStats(true),
			dssim.WithLevelObserver(func(ev dssim.LevelEvent) error {
				if ev.Level == 1 {
					scale1 = [2][]byte{ev.Image1.RGBA8(), ev.Image2.RGBA8()}
				}
				return nil
			}))
	}

	res, err := dssim.Compare(ctx, img1, img2, opts...)
	if err != nil {
		return nil, info1, info2, nil, err
	}

	var dumps []report.DumpFile
	if cfg.dumpDir != "" {
		if dumps, err = writeDumps(cfg.dumpDir, img1, img2, res, scale1); err != nil {
			return nil, info1, info2, nil, &dssim.StageError{Stage: dssim.StageReport, Err: err}
		}
	}
	return res, info1, info2, dumps, nil
}

func writeDumps(dir string, img1, img2 *dssim.DecodedImage, res *dssim.Result, scale1 [2][]byte) ([]report.DumpFile, error) {
	d, err := report.NewDumper(dir, res.Backend)
	if err != nil {
		return nil, err
	}
	if err := d.U8("image1_rgba8", img1.Pix); err != nil {
		return nil, err
	}
	if err := d.U8("image2_rgba8", img2.Pix); err != nil {
		return nil, err
	}
	s0 := res.Scales[0]
	if err := d.U32("stage0_dssim_u32le", s0.DssimQ); err != nil {
		return nil, err
	}
	if st := s0.Stats; st != nil {
		for _, f := range []struct {
			name string
			vals []float32
		}{
			{"stage0_mu1_f32le", st.Mu1},
			{"stage0_mu2_f32le", st.Mu2},
			{"stage0_var1_f32le", st.Var1},
			{"stage0_var2_f32le", st.Var2},
			{"stage0_cov12_f32le", st.Cov12},
		} {
			if err := d.F32(f.name, f.vals); err != nil {
				return nil, err
			}
		}
	}
	if len(res.Scales) > 1 && scale1[0] != nil {
		if err := d.U8("image1_scale1_rgba8", scale1[0]); err != nil {
			return nil, err
		}
		if err := d.U8("image2_scale1_rgba8", scale1[1]); err != nil {
			return nil, err
		}
		if err := d.U32("stage1_dssim_u32le", res.Scales[1].DssimQ); err != nil {
			return nil, err
		}
	}
	return d.Manifest(), nil
}

func decodedInfo(d *dssim.DecodedImage) *report.DecodedInfo {
	return &report.DecodedInfo{Width: d.Width, Height: d.Height, Channels: d.Channels, Bytes: d.Bytes()}
}

func writeErrorDoc(cfg *config, info1, info2 *report.DecodedInfo, runErr error) {
	doc := report.Build(report.Input{
		Image1:       cfg.image1,
		Image2:       cfg.image2,
		OutPath:      cfg.out,
		DebugDumpDir: cfg.dumpDir,
		Decoded1:     info1,
		Decoded2:     info2,
		Version:      dssim.Version,
		Err:          runErr,
	})
	if err := report.WriteFile(cfg.out, doc); err != nil {
		dssim.Logger().Warn("dssimgpu: error document not written", "path", cfg.out, "err", err)
	}
}

// record appends the run to the history database. Failures are logged and
// never change the exit code.
func record(ctx context.Context, hist *history.Store, cfg *config, res *dssim.Result, runErr error) {
	if hist == nil {
		return
	}
	r := history.Run{
		Image1:  absPath(cfg.image1),
		Image2:  absPath(cfg.image2),
		Engine:  report.Engine,
		Backend: string(cfg.backend),
		Status:  report.StatusError,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if res != nil {
		r.Status = report.StatusOK
		r.Backend = res.Backend
		r.Adapter = res.Adapter
		r.Metric = report.Metric(res.Kernel)
		r.Score = res.Score
		r.WeightedSSIM = res.WeightedSSIM
		for _, s := range res.Scales {
			r.Scales = append(r.Scales, history.Scale{
				Level:     s.Level,
				Width:     s.Width,
				Height:    s.Height,
				Sum:       s.Sum,
				MeanDssim: s.MeanDssim,
				Score:     s.Score,
				Weight:    s.Weight,
			})
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := hist.Record(ctx, r); err != nil {
		dssim.Logger().Warn("dssimgpu: history not recorded", "err", err)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
