// Package coordinator runs analysis requests with caching, in-flight
// deduplication and a per-run deadline.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/edp1096/circuit-engine/pkg/analysis"
	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/logging"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

var tracer = otel.Tracer("github.com/edp1096/circuit-engine/pkg/coordinator")

var (
	ErrUnknownRequest = errors.New("unknown request id")
	ErrPending        = errors.New("request still running")
)

// Request pairs a circuit with the analysis to run on it. The circuit must
// not be modified while the request runs.
type Request struct {
	Circuit *circuit.Graph
	Spec    analysis.Spec
}

// Response is what the caller gets back. Cached is set when the result came
// from an earlier or concurrent identical run. Result is the caller's own
// copy.
type Response struct {
	ID          string
	Fingerprint string
	Result      *analysis.Result
	Cached      bool
	Elapsed     time.Duration
}

// entry is one fingerprint's run. done is closed once result and err are
// final; both are read-only afterwards. waiters counts the callers still
// attached, the owner included; the last one to leave cancels the run.
type entry struct {
	done    chan struct{}
	cancel  context.CancelFunc
	result  *analysis.Result
	err     error
	waiters int
}

type runFunc func(ctx context.Context, g *circuit.Graph, cfg config.Config, spec analysis.Spec, opts ...analysis.Option) (*analysis.Result, error)

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// Coordinator is safe for concurrent use. mu guards the maps and history
// only; it is never held while a circuit is solved.
type Coordinator struct {
	cfg config.Config
	log *slog.Logger
	run runFunc

	mu      sync.Mutex
	entries map[string]*entry
	jobs    map[string]*job
	history []HistoryEntry
}

func New(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		run:     analysis.Run,
		entries: make(map[string]*entry),
		jobs:    make(map[string]*job),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrDefault(c.log)
	return c
}

// Fingerprint identifies a request: the circuit, the analysis and the
// numerical settings it runs under.
func Fingerprint(req Request, cfg config.Config) (string, error) {
	if req.Circuit == nil {
		return "", simerr.Validationf("", "request without a circuit")
	}
	circuitHash, err := req.Circuit.Fingerprint()
	if err != nil {
		return "", err
	}
	h, err := hashstructure.Hash(struct {
		Circuit    uint64
		Spec       analysis.Spec
		Simulation config.SimulationConfig
	}{circuitHash, req.Spec, cfg.Simulation}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}

// Run executes req, or joins an identical run already in flight, or serves a
// cached result.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Response, error) {
	return c.execute(ctx, uuid.NewString(), req)
}

func (c *Coordinator) execute(ctx context.Context, id string, req Request) (resp *Response, err error) {
	kind := req.Spec.Kind.String()
	ctx, span := tracer.Start(ctx, "coordinator.run", trace.WithAttributes(
		attribute.String("request.id", id),
		attribute.String("analysis.kind", kind),
	))
	start := time.Now()
	var cached bool
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("cached", cached))
		span.End()
		requestsTotal.WithLabelValues(kind, outcome).Inc()
		requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		c.record(id, req.Spec.Kind, cached, start, err)
	}()

	if err := req.Spec.Validate(); err != nil {
		return nil, err
	}
	fp, err := Fingerprint(req, c.cfg)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("fingerprint", fp))

	e, part := c.claim(ctx, fp, req)
	if part != hit {
		select {
		case <-e.done:
		case <-ctx.Done():
			c.leave(fp, e)
			return nil, c.contextError(ctx, start)
		}
	}

	if e.err != nil {
		return nil, e.err
	}
	cached = part != owner
	if part == hit {
		cacheHits.Inc()
	}
	c.log.Info("request complete",
		slog.String("id", id),
		slog.String("kind", kind),
		slog.String("fingerprint", fp),
		slog.Bool("cached", cached),
		slog.Duration("elapsed", time.Since(start)),
	)
	return &Response{ID: id, Fingerprint: fp, Result: e.result.Clone(), Cached: cached, Elapsed: time.Since(start)}, nil
}

type role int

const (
	owner  role = iota // runs the analysis
	waiter             // joins a run in flight
	hit                // reads a completed entry
)

// claim returns the entry for fp and the caller's part in it. A caller that
// finds no entry becomes the owner and starts the run. The run keeps the
// owner's context values but not its cancellation, so one caller giving up
// does not fail the others.
func (c *Coordinator) claim(ctx context.Context, fp string, req Request) (*entry, role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fp]; ok {
		select {
		case <-e.done:
			return e, hit
		default:
			e.waiters++
			sharedRuns.Inc()
			return e, waiter
		}
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{done: make(chan struct{}), cancel: cancel, waiters: 1}
	c.entries[fp] = e
	go c.complete(runCtx, fp, e, req)
	return e, owner
}

func (c *Coordinator) complete(ctx context.Context, fp string, e *entry, req Request) {
	defer e.cancel()
	e.result, e.err = c.solve(ctx, req)
	c.settle(fp, e)
}

// settle publishes the outcome. Failures, and every result when caching is
// off, leave the map so the next identical request runs again.
func (c *Coordinator) settle(fp string, e *entry) {
	c.mu.Lock()
	if (e.err != nil || !c.cfg.Service.EnableCaching) && c.entries[fp] == e {
		delete(c.entries, fp)
	}
	waiters := e.waiters
	c.mu.Unlock()

	if waiters > 1 {
		c.log.Debug("shared run settled",
			slog.String("fingerprint", fp),
			slog.Int("waiters", waiters),
			slog.Bool("failed", e.err != nil),
		)
	}
	close(e.done)
}

// leave detaches a caller whose context ended before the run settled. When
// nobody is left the run is cancelled and its entry dropped, so a later
// identical request starts a fresh one.
func (c *Coordinator) leave(fp string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.waiters--
	if e.waiters > 0 {
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	if c.entries[fp] == e {
		delete(c.entries, fp)
	}
	e.cancel()
}

// solve runs the analysis under service_timeout. A run that overstays is
// abandoned; it stops at its next cancellation check.
func (c *Coordinator) solve(ctx context.Context, req Request) (*analysis.Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	type outcome struct {
		res *analysis.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := c.run(ctx, req.Circuit, c.cfg, req.Spec, analysis.WithLogger(c.log))
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && ctx.Err() != nil {
			return nil, c.contextError(ctx, start)
		}
		return o.res, o.err
	case <-ctx.Done():
		return nil, c.contextError(ctx, start)
	}
}

func (c *Coordinator) contextError(ctx context.Context, start time.Time) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		timeouts.Inc()
		return &simerr.TimeoutError{Elapsed: time.Since(start), Limit: c.cfg.Timeout()}
	}
	return ctx.Err()
}

// BatchResult is one slot of RunBatch.
type BatchResult struct {
	Response *Response
	Err      error
}

// RunBatch runs independent requests on the worker pool. Results keep the
// order of reqs.
func (c *Coordinator) RunBatch(ctx context.Context, reqs []Request) []BatchResult {
	out := make([]BatchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers())
	for i, req := range reqs {
		g.Go(func() error {
			out[i].Response, out[i].Err = c.Run(gctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ClearCache drops completed results. Runs in flight are kept so their
// waiters still get an answer.
func (c *Coordinator) ClearCache() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for fp, e := range c.entries {
		select {
		case <-e.done:
			delete(c.entries, fp)
			n++
		default:
		}
	}
	return n
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, simerr.ErrValidation):
		return "validation"
	case errors.Is(err, simerr.ErrSingular):
		return "singular"
	case errors.Is(err, simerr.ErrConvergence):
		return "convergence"
	case errors.Is(err, simerr.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
