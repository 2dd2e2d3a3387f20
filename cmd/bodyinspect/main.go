// Command bodyinspect generates, loads and picks body datasets.
//
// Usage:
//
//	bodyinspect [flags] gen DIR
//	bodyinspect [flags] stats DIR
//	bodyinspect [flags] pick DIR X,Y
//	bodyinspect [flags] surface DIR X,Y OUT.png
//
// Positions are scaled so that the -extent flag maps to the edge of the view.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/gogpu/anatomy"
	"github.com/gogpu/anatomy/bundle"
	"github.com/gogpu/anatomy/gpu"
	"github.com/gogpu/anatomy/internal/metrics"
	"github.com/gogpu/anatomy/internal/synth"
	"github.com/gogpu/anatomy/pick"
	"github.com/gogpu/anatomy/stream"
	"github.com/gogpu/anatomy/texture"
)

var (
	width   = flag.Int("width", 128, "viewport width")
	height  = flag.Int("height", 128, "viewport height")
	extent  = flag.Float64("extent", 64, "half-size of the view box in model units")
	window  = flag.Int("window", pick.DefaultWindowSize, "picking window size")
	backend = flag.String("gpu", "", "pick on a GPU backend: vulkan or noop")
	current = flag.String("layer", "skin", "layer loaded first")
	opaque  = flag.String("opaque", "all", "comma-separated layers made opaque before picking")
	workers = flag.Int("workers", 0, "decode workers, 0 for GOMAXPROCS")
	budget  = flag.Int("texture-budget", 0, "texture cache budget in bytes, 0 for the default")
	timeout = flag.Duration("timeout", time.Minute, "load timeout")
	verbose = flag.Bool("v", false, "log to stderr")

	liver  = flag.Bool("liver", false, "gen: write only the liver example layer")
	groups = flag.Int("groups", 2, "gen: draw groups per layer")
	draws  = flag.Int("draws", 4, "gen: draws per group")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 2 {
		usage()
		os.Exit(2)
	}
	if *verbose {
		anatomy.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cmd, dir, args := flag.Arg(0), flag.Arg(1), flag.Args()[2:]
	var err error
	switch cmd {
	case "gen":
		err = gen(dir)
	case "stats":
		err = stats(dir)
	case "pick":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		err = pickAt(dir, args[0])
	case "surface":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		err = surface(dir, args[0], args[1])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: bodyinspect [flags] gen|stats DIR\n")
	fmt.Fprintf(os.Stderr, "       bodyinspect [flags] pick DIR X,Y\n")
	fmt.Fprintf(os.Stderr, "       bodyinspect [flags] surface DIR X,Y OUT.png\n\n")
	flag.PrintDefaults()
}

func gen(dir string) error {
	layers := synth.Body(*groups, *draws)
	if *liver {
		layers = []synth.Layer{synth.Liver()}
	}
	ds, err := synth.Build("synthetic", layers...)
	if err != nil {
		return err
	}
	if err := ds.WriteDir(dir); err != nil {
		return err
	}
	log.Printf("Dataset written to %s (%d layers, %d files)\n", dir, len(layers), len(ds.FS))
	return nil
}

// session is a loaded model plus the renderer it picks with.
type session struct {
	model    *anatomy.Model
	renderer pick.Renderer
	registry *prometheus.Registry
	close    func()
}

func open(dir string) (*session, error) {
	first, err := bundle.LayerFromName(*current)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	streamOpts := []stream.Option{stream.WithMetrics(metrics.NewLoader(reg))}
	if *workers > 0 {
		streamOpts = append(streamOpts, stream.WithWorkers(*workers))
	}
	var textureOpts []texture.Option
	if *budget > 0 {
		textureOpts = append(textureOpts, texture.WithCacheBudget(*budget))
	}
	opts := []anatomy.Option{
		anatomy.WithCurrentLayer(first),
		anatomy.WithWindowSize(*window),
		anatomy.WithStreamOptions(streamOpts...),
		anatomy.WithTextureOptions(textureOpts...),
	}

	s := &session{registry: reg, close: func() {}, renderer: pick.NewSoftwareRenderer()}
	if *backend != "" {
		variant, err := parseBackend(*backend)
		if err != nil {
			return nil, err
		}
		r, err := gpu.Open(variant)
		if err != nil {
			return nil, err
		}
		s.renderer = r
		s.close = r.Close
		opts = append(opts, anatomy.WithRenderer(r), anatomy.WithUploader(r))
	}

	m, err := anatomy.Open(dir, opts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.model = m
	gpuClose := s.close
	s.close = func() {
		m.Close()
		gpuClose()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	start := time.Now()
	if err := m.Load(ctx); err != nil {
		s.close()
		return nil, err
	}
	if err := m.Wait(); err != nil {
		// Layers that did load stay usable.
		log.Printf("load: %v", err)
	}
	log.Printf("Loaded %s in %v\n", dir, time.Since(start).Round(time.Millisecond))
	return s, nil
}

func parseBackend(name string) (gputypes.Backend, error) {
	switch strings.ToLower(name) {
	case "vulkan":
		return gputypes.BackendVulkan, nil
	case "noop", "empty":
		return gputypes.BackendEmpty, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", name)
	}
}

func stats(dir string) error {
	s, err := open(dir)
	if err != nil {
		return err
	}
	defer s.close()

	body := s.model.Body()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tLOADED\tGROUPS\tDRAWS\tVERTICES\tINDICES")
	for _, l := range bundle.RenderOrder() {
		var nd, nv, ni int
		gs := body.Groups(l)
		for _, g := range gs {
			nd += len(g.Draws)
			nv += g.VertexCount()
			ni += g.NumIndices
		}
		fmt.Fprintf(tw, "%s\t%v\t%d\t%d\t%d\t%d\n", l, body.Loaded(l), len(gs), nd, nv, ni)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	cs := s.model.Textures().CacheStats()
	fmt.Printf("\ncolors: %d (next %d)\n", body.Colors().Len(), body.NextColor())
	fmt.Printf("textures: %d cached, %d bytes, %d hits, %d misses, %d evictions\n",
		cs.Len, cs.Cost, cs.Hits, cs.Misses, cs.Evictions)

	families, err := s.registry.Gather()
	if err != nil {
		return err
	}
	fmt.Println()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Printf("%s%s %s\n", mf.GetName(), labels(m), value(mf.GetType(), m))
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return strconv.FormatFloat(m.GetCounter().GetValue(), 'g', -1, 64)
	case dto.MetricType_GAUGE:
		return strconv.FormatFloat(m.GetGauge().GetValue(), 'g', -1, 64)
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%.4fs", h.GetSampleCount(), h.GetSampleSum())
	default:
		return "?"
	}
}

func parsePoint(s string) (x, y int, err error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("point %q: want X,Y", s)
	}
	if x, err = strconv.Atoi(strings.TrimSpace(xs)); err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	if y, err = strconv.Atoi(strings.TrimSpace(ys)); err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	return x, y, nil
}

// prepare sets the view and the opaque layers.
func prepare(body *anatomy.Body) error {
	s := float32(pick.PositionW / *extent)
	body.SetView(*width, *height, mgl32.Scale3D(s, s, s))

	if *opaque == "all" {
		for _, l := range bundle.RenderOrder() {
			body.SetOpacity(l, 1)
		}
		return nil
	}
	for _, name := range strings.Split(*opaque, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		l, err := bundle.LayerFromName(name)
		if err != nil {
			return err
		}
		body.SetOpacity(l, 1)
	}
	return nil
}

func pickAt(dir, point string) error {
	x, y, err := parsePoint(point)
	if err != nil {
		return err
	}
	s, err := open(dir)
	if err != nil {
		return err
	}
	defer s.close()

	body := s.model.Body()
	if err := prepare(body); err != nil {
		return err
	}
	e, ok, err := body.PickEntry(x, y)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("nothing")
		return nil
	}
	fmt.Printf("%s (layer %s, group %d, draw %d, indices [%d,%d))\n",
		e.Geometry, bundle.Layer(e.Layer), e.Group, e.Draw, e.Offset, e.Offset+e.Count)
	return nil
}

func surface(dir, point, out string) error {
	x, y, err := parsePoint(point)
	if err != nil {
		return err
	}
	s, err := open(dir)
	if err != nil {
		return err
	}
	defer s.close()

	body := s.model.Body()
	if err := prepare(body); err != nil {
		return err
	}
	surf, _, err := pick.NewPicker(s.renderer, pick.WithWindowSize(*window)).Render(body.Scene(), x, y)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, surf.Image()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("Surface saved to %s (%dx%d)\n", out, surf.Width, surf.Height)
	return nil
}
