package stream

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/anatomy/codec"
	"github.com/gogpu/anatomy/internal/metrics"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	workers     int
	scratchSize int
	dispatcher  Dispatcher
	metrics     *metrics.Loader
	tracer      trace.Tracer
	onLayerErr  func(*LayerError)
	generation  uint64
}

func defaultOptions() options {
	return options{
		workers:     1,
		scratchSize: codec.DefaultScratchSize,
		dispatcher:  DirectDispatcher{},
		tracer:      otel.Tracer("github.com/gogpu/anatomy/stream"),
	}
}

// WithWorkers sets how many goroutines decode the streams of one blob.
// Each worker owns a scratch arena. Zero or less uses GOMAXPROCS.
// The default is 1, which decodes on the session goroutine.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithScratchSize sets the capacity of each scratch arena in code units.
func WithScratchSize(n int) Option {
	return func(o *options) { o.scratchSize = n }
}

// WithDispatcher sets where results are delivered. The default runs the
// receiver on the session goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		if d != nil {
			o.dispatcher = d
		}
	}
}

// WithMetrics records phase timings and layer outcomes in m.
func WithMetrics(m *metrics.Loader) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer sets the tracer for session and layer spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLayerErrorHandler calls fn on the session goroutine for every layer
// that fails to load.
func WithLayerErrorHandler(fn func(*LayerError)) Option {
	return func(o *options) { o.onLayerErr = fn }
}

// WithGeneration sets the number stamped on every result and failure of
// the session. A Controller numbers its sessions from 1 and overrides it.
func WithGeneration(g uint64) Option {
	return func(o *options) { o.generation = g }
}
