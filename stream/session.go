package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/internal/logging"
	"github.com/gogpu/anatomy/internal/metrics"
	"github.com/gogpu/anatomy/internal/parallel"
	"github.com/gogpu/anatomy/manifest"
	"github.com/gogpu/anatomy/selection"
)

// Session errors.
var (
	// ErrCancelled is returned by Run when the session stopped before
	// every layer was processed. It is a normal outcome, not a failure.
	ErrCancelled = errors.New("stream: session cancelled")

	// ErrBlobRange is returned when a stream extends past its blob.
	ErrBlobRange = errors.New("stream: stream exceeds blob")

	// ErrDrawRange is returned when a draw references a vertex the group
	// does not have.
	ErrDrawRange = errors.New("stream: draw references missing vertex")

	// ErrSessionUsed is returned when Run is called twice.
	ErrSessionUsed = errors.New("stream: session already run")

	// ErrMissingDeps is returned by NewSession when a collaborator is nil.
	ErrMissingDeps = errors.New("stream: missing dependency")
)

// State is the position of a session in its lifecycle.
type State int32

const (
	// Idle sessions have not started.
	Idle State = iota
	// LayerLoading means a layer is being parsed, read or decoded.
	LayerLoading
	// LayerComplete means a layer finished and was handed to the dispatcher.
	LayerComplete
	// AllDone means every layer was processed.
	AllDone
	// Cancelled means the session stopped early on request.
	Cancelled
	// Aborted means the color space ran out and loading stopped.
	Aborted
)

var stateNames = [...]string{
	Idle:          "idle",
	LayerLoading:  "layer-loading",
	LayerComplete: "layer-complete",
	AllDone:       "all-done",
	Cancelled:     "cancelled",
	Aborted:       "aborted",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions happen.
func (s State) Terminal() bool {
	return s == AllDone || s == Cancelled || s == Aborted
}

// Session loads an ordered list of layers once.
type Session struct {
	sources []LayerSource
	deps    Deps
	opts    options

	cancelled atomic.Bool
	started   atomic.Bool
	state     atomic.Int32
	current   atomic.Int32

	// Decode state, alive between Run's setup and release.
	pool    *parallel.WorkerPool
	scratch []*codec.Scratch
}

// NewSession returns a session that loads sources in order.
func NewSession(sources []LayerSource, deps Deps, opts ...Option) (*Session, error) {
	switch {
	case deps.Manifests == nil:
		return nil, fmt.Errorf("%w: manifests", ErrMissingDeps)
	case deps.Fingerprints == nil:
		return nil, fmt.Errorf("%w: fingerprints", ErrMissingDeps)
	case deps.TextureLoader == nil:
		return nil, fmt.Errorf("%w: texture loader", ErrMissingDeps)
	case deps.Blobs == nil:
		return nil, fmt.Errorf("%w: blobs", ErrMissingDeps)
	case deps.Colors == nil:
		return nil, fmt.Errorf("%w: colors", ErrMissingDeps)
	case deps.Receiver == nil:
		return nil, fmt.Errorf("%w: receiver", ErrMissingDeps)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		sources: append([]LayerSource(nil), sources...),
		deps:    deps,
		opts:    o,
	}
	s.current.Store(-1)
	return s, nil
}

// Cancel asks the session to stop. It returns immediately; Run returns
// once the session reaches its next checkpoint.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Current returns the index into the source list of the layer being
// loaded, or -1 before the first layer starts.
func (s *Session) Current() int {
	return int(s.current.Load())
}

// Generation returns the number the owning controller gave this session,
// or the one set with WithGeneration.
func (s *Session) Generation() uint64 {
	return s.opts.generation
}

func (s *Session) checkpoint(ctx context.Context) error {
	if s.cancelled.Load() || ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// Run loads every layer and delivers each one that completes.
//
// Run returns nil when all layers loaded, ErrCancelled when it was
// cancelled (directly or through ctx), an error wrapping
// selection.ErrColorOverflow when the color space ran out, and otherwise
// the joined *LayerError values of the layers that failed.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionUsed
	}

	ctx, span := s.opts.tracer.Start(ctx, "stream.Session.Run",
		trace.WithAttributes(attribute.Int("layers", len(s.sources))))
	defer span.End()

	stop := context.AfterFunc(ctx, s.Cancel)
	defer stop()

	s.setup()
	defer s.release()

	log := logging.L()
	start := time.Now()
	var (
		errs      []error
		processed int
	)

layers:
	for i, src := range s.sources {
		if s.checkpoint(ctx) != nil {
			break
		}
		s.current.Store(int32(i))
		s.state.Store(int32(LayerLoading))
		last := i == len(s.sources)-1

		layerStart := time.Now()
		res, err := s.loadLayer(ctx, src)
		switch {
		case errors.Is(err, ErrCancelled):
			break layers
		case errors.Is(err, selection.ErrColorOverflow):
			s.state.Store(int32(Aborted))
			s.opts.metrics.LayerDone(metrics.OutcomeFailed)
			lerr := &LayerError{Layer: src, Generation: s.opts.generation, Err: err}
			s.fail(lerr, true)
			span.RecordError(lerr)
			span.SetStatus(codes.Error, "color space exhausted")
			log.Error("stream: selection colors exhausted", "layer", src.Name)
			return fmt.Errorf("stream: layer %s: %w", src.Name, err)
		case err != nil:
			lerr := &LayerError{Layer: src, Generation: s.opts.generation, Err: err}
			errs = append(errs, lerr)
			processed++
			s.opts.metrics.LayerDone(metrics.OutcomeFailed)
			span.RecordError(lerr)
			log.Warn("stream: layer failed", "layer", src.Name, "err", err)
			s.fail(lerr, last)
			continue
		}

		// A layer that finished after cancellation is dropped.
		if s.checkpoint(ctx) != nil {
			break
		}
		processed++
		s.state.Store(int32(LayerComplete))
		s.opts.metrics.LayerDone(metrics.OutcomeLoaded)
		s.opts.metrics.SetMaxColor(res.Colors.MaxAssigned())
		log.Info("stream: layer loaded",
			"layer", src.Name, "groups", len(res.Groups),
			"colors", res.Colors.Len(), "duration", time.Since(layerStart))
		s.deliver(res, last)
	}

	if processed < len(s.sources) {
		s.state.Store(int32(Cancelled))
		s.opts.metrics.LayerDone(metrics.OutcomeCancelled)
		span.SetAttributes(attribute.Bool("cancelled", true))
		log.Debug("stream: session cancelled", "processed", processed, "duration", time.Since(start))
		return ErrCancelled
	}

	s.state.Store(int32(AllDone))
	log.Debug("stream: session done", "layers", len(s.sources), "failed", len(errs), "duration", time.Since(start))
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "layers failed")
	}
	return errors.Join(errs...)
}

func (s *Session) setup() {
	workers := 1
	if s.opts.workers != 1 {
		s.pool = parallel.NewWorkerPool(s.opts.workers)
		workers = s.pool.Workers()
	}
	s.scratch = make([]*codec.Scratch, workers)
	for i := range s.scratch {
		s.scratch[i] = codec.NewScratch(s.opts.scratchSize)
	}
}

func (s *Session) release() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	for _, sc := range s.scratch {
		sc.Release()
	}
	s.scratch = nil
}

func (s *Session) deliver(r *LoadResult, allDone bool) {
	recv := s.deps.Receiver
	s.opts.dispatcher.Dispatch(func() { recv.FinishLayerLoad(r, allDone) })
}

func (s *Session) fail(lerr *LayerError, allDone bool) {
	if s.opts.onLayerErr != nil {
		s.opts.onLayerErr(lerr)
	}
	if fr, ok := s.deps.Receiver.(FailureReceiver); ok {
		s.opts.dispatcher.Dispatch(func() { fr.LayerFailed(lerr, allDone) })
	}
}

// phaseTimes accumulates the time spent in each load phase of a layer.
type phaseTimes struct {
	manifestRead, parse, texture, blobRead, decode, colorBuffer time.Duration
}

func (s *Session) report(src LayerSource, pt *phaseTimes) {
	m := s.opts.metrics
	m.ObservePhase(metrics.PhaseManifestRead, pt.manifestRead)
	m.ObservePhase(metrics.PhaseParse, pt.parse)
	m.ObservePhase(metrics.PhaseTexture, pt.texture)
	m.ObservePhase(metrics.PhaseBlobRead, pt.blobRead)
	m.ObservePhase(metrics.PhaseDecode, pt.decode)
	m.ObservePhase(metrics.PhaseColorBuffer, pt.colorBuffer)

	logging.L().Debug("stream: layer timings",
		"layer", src.Name,
		"manifest_read", pt.manifestRead,
		"parse", pt.parse,
		"texture", pt.texture,
		"blob_read", pt.blobRead,
		"decode", pt.decode,
		"colorbuf", pt.colorBuffer)
}

// loadLayer runs every phase for one layer. The result is complete or nil.
func (s *Session) loadLayer(ctx context.Context, src LayerSource) (_ *LoadResult, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "stream.Session.loadLayer",
		trace.WithAttributes(attribute.String("layer", src.Name), attribute.Int("layer.id", src.ID)))
	defer func() {
		if err != nil && !errors.Is(err, ErrCancelled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "layer failed")
		}
		span.End()
	}()

	var pt phaseTimes

	t := time.Now()
	data, err := fs.ReadFile(s.deps.Manifests, src.Manifest)
	pt.manifestRead = time.Since(t)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := s.checkpoint(ctx); err != nil {
		return nil, err
	}

	t = time.Now()
	m, err := manifest.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	plan, err := manifest.Resolve(m, s.deps.Fingerprints, s.deps.Textures)
	pt.parse = time.Since(t)
	if err != nil {
		return nil, err
	}

	groups := make([]*DrawGroup, len(plan.Groups))
	t = time.Now()
	for i := range plan.Groups {
		if err := s.checkpoint(ctx); err != nil {
			return nil, err
		}
		gp := &plan.Groups[i]
		tex, err := s.deps.TextureLoader.Load(ctx, gp.Texture)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("draw group %d: %w", i, err)
		}
		groups[i] = &DrawGroup{
			Texture:    tex,
			NumIndices: gp.Spec.NumIndices,
			Draws:      gp.Spec.Draws,
		}
	}
	pt.texture = time.Since(t)

	for _, bt := range groupTasks(plan) {
		if err := s.checkpoint(ctx); err != nil {
			return nil, err
		}
		t = time.Now()
		blob, err := s.deps.Blobs.ReadBlob(ctx, bt.Blob)
		pt.blobRead += time.Since(t)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("blob %q: %w", bt.Blob, err)
		}
		s.opts.metrics.BlobUnits(len(blob))

		t = time.Now()
		err = s.decode(ctx, bt, blob, groups)
		pt.decode += time.Since(t)
		if err != nil {
			return nil, err
		}
	}

	if err := checkDraws(groups); err != nil {
		return nil, err
	}

	t = time.Now()
	for gi, g := range groups {
		if err := s.checkpoint(ctx); err != nil {
			return nil, err
		}
		g.Colors = make([]uint16, codec.VertexCount(len(g.Vertices)))
		for di, d := range g.Draws {
			c, err := s.deps.Colors.Assign(selection.Entry{
				Layer:    src.ID,
				Group:    gi,
				Draw:     di,
				Geometry: d.Geometry,
				Offset:   d.Offset,
				Count:    d.Count,
			})
			if err != nil {
				return nil, err
			}
			if err := selection.Stamp(g.Colors, g.Indices, d.Offset, d.Count, c); err != nil {
				return nil, fmt.Errorf("draw group %d draw %q: %w", gi, d.Geometry, err)
			}
		}
	}
	pt.colorBuffer = time.Since(t)
	s.report(src, &pt)

	return &LoadResult{
		Layer:      src.ID,
		Name:       src.Name,
		Generation: s.opts.generation,
		Groups:     groups,
		Colors:     s.deps.Colors.Snapshot(),
		NextColor:  s.deps.Colors.Next(),
	}, nil
}

// decode runs every task of one blob. All ranges are checked before any
// decoding starts.
func (s *Session) decode(ctx context.Context, bt blobTasks, blob []uint16, groups []*DrawGroup) error {
	for _, task := range bt.Tasks {
		if err := task.check(len(blob)); err != nil {
			return err
		}
	}

	if s.pool == nil || len(bt.Tasks) == 1 {
		for _, task := range bt.Tasks {
			if err := s.checkpoint(ctx); err != nil {
				return err
			}
			task.run(blob, groups, s.scratch[0])
		}
		return nil
	}

	jobs := make([]parallel.Job, len(bt.Tasks))
	for i, task := range bt.Tasks {
		jobs[i] = func(worker int) {
			if s.cancelled.Load() {
				return
			}
			task.run(blob, groups, s.scratch[worker])
		}
	}
	s.pool.ExecuteAll(jobs)
	return s.checkpoint(ctx)
}

// checkDraws verifies that every draw addresses existing vertices, so no
// color is assigned for a layer that cannot be stamped.
func checkDraws(groups []*DrawGroup) error {
	for gi, g := range groups {
		nv := codec.VertexCount(len(g.Vertices))
		for _, d := range g.Draws {
			if d.Offset+d.Count > len(g.Indices) {
				return fmt.Errorf("%w: group %d draw %q range [%d,%d) of %d indices",
					ErrDrawRange, gi, d.Geometry, d.Offset, d.Offset+d.Count, len(g.Indices))
			}
			for _, idx := range g.Indices[d.Offset : d.Offset+d.Count] {
				if int(idx) >= nv {
					return fmt.Errorf("%w: group %d draw %q index %d of %d vertices",
						ErrDrawRange, gi, d.Geometry, idx, nv)
				}
			}
		}
	}
	return nil
}
