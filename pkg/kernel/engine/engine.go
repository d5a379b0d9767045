// Package engine resolves a layer into an ordered directive plan and
// executes it against a consumer, sequentially and fail-fast.
package engine

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/layer"
	"github.com/ormasoftchile/loadout/pkg/kernel/plan"
	"github.com/ormasoftchile/loadout/pkg/kernel/trace"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
)

// DefaultMaxDepth bounds nested generator expansion.
const DefaultMaxDepth = 64

// Apply statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Config configures an Engine.
type Config struct {
	RunID    string
	Units    unit.Lookup   // resolves directive targets; nil resolves nothing
	Trace    *trace.Writer // optional
	Logger   *log.Logger   // optional; nil discards
	MaxDepth int           // 0 uses DefaultMaxDepth
}

// Request is the per-invocation input of Apply.
type Request struct {
	Bundles    []string
	Exclusions *directive.Exclusions
	Args       map[string]any
}

// Result is the outcome of one Apply. Executed lists the directives that
// completed, in order, including expansions; on failure it shows how far
// the walk got, since effects are not rolled back.
type Result struct {
	Status   string
	Executed []directive.Directive
	Duration time.Duration
	Error    error
}

// Engine applies one layer. It holds no per-apply state, so one Engine can
// serve any number of applies, including concurrent ones against
// different consumers.
type Engine struct {
	layer    *layer.Layer
	cfg      Config
	log      *log.Logger
	maxDepth int
}

// New creates an engine for the given layer.
func New(l *layer.Layer, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.Units == nil {
		cfg.Units = unit.NewRegistry()
	}
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &Engine{
		layer:    l,
		cfg:      cfg,
		log:      logger.With("layer", l.Name()),
		maxDepth: depth,
	}
}

// Layer returns the layer this engine applies.
func (e *Engine) Layer() *layer.Layer { return e.layer }

// Plan resolves the static order for req without executing anything.
// Dynamic directives appear unexpanded.
func (e *Engine) Plan(consumer unit.Consumer, req Request) ([]directive.Directive, error) {
	rc := directive.NewContext(consumer, req.Bundles, req.Exclusions, req.Args)
	return e.plan(rc)
}

func (e *Engine) plan(rc *directive.Context) ([]directive.Directive, error) {
	if err := e.layer.CheckBundles(rc.Bundles); err != nil {
		return nil, err
	}
	raw, err := e.layer.Resolve(rc)
	if err != nil {
		return nil, err
	}
	return plan.Plan(raw, rc.Exclusions)
}

// Apply resolves and executes the layer against consumer. It is used both
// when a consumer first binds to the layer and for any later re-apply;
// every call starts from a fresh resolution context.
func (e *Engine) Apply(consumer unit.Consumer, req Request) *Result {
	start := time.Now()
	rc := directive.NewContext(consumer, req.Bundles, req.Exclusions, req.Args)
	logger := e.log.With("consumer", rc.ConsumerID())

	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitApplyStart(e.layer.Name(), rc.ConsumerID(), rc.Bundles, rc.Exclusions.Map())
	}

	r := &run{e: e, rc: rc, consumer: consumer, log: logger}
	steps, err := e.plan(rc)
	if err == nil {
		logger.Debug("plan resolved", "steps", len(steps), "bundles", rc.Bundles)
		if e.cfg.Trace != nil {
			e.cfg.Trace.EmitPlanResolved(describe(steps))
		}
		err = r.walk(steps, 0)
	}

	result := &Result{
		Status:   StatusCompleted,
		Executed: r.executed,
		Duration: time.Since(start),
	}
	var failure *trace.Failure
	if err != nil {
		result.Status = StatusFailed
		result.Error = err
		failure = &trace.Failure{Kind: FailureKind(err), Message: err.Error()}
		logger.Error("apply failed", "executed", len(r.executed), "err", err)
	} else {
		logger.Info("apply completed", "executed", len(r.executed), "duration", result.Duration)
	}
	if e.cfg.Trace != nil {
		e.cfg.Trace.EmitApplyComplete(result.Status, len(r.executed), result.Duration, failure)
	}
	return result
}

// run is the state of one walk.
type run struct {
	e        *Engine
	rc       *directive.Context
	consumer unit.Consumer
	log      *log.Logger
	executed []directive.Directive
	seq      int
}

func (r *run) walk(ds []directive.Directive, depth int) error {
	for _, d := range ds {
		var err error
		if d.IsDynamic() {
			err = r.expand(d, depth)
		} else {
			err = r.execute(d, depth)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// expand runs a generator and executes its filtered output in place.
func (r *run) expand(d directive.Directive, depth int) error {
	if depth >= r.e.maxDepth {
		return &ExpansionDepthError{Limit: r.e.maxDepth}
	}
	raw, err := d.Generator(r.rc)
	if err != nil {
		return &GeneratorError{Depth: depth, Err: err}
	}
	produced, err := directive.NormalizeGenerated(raw)
	if err != nil {
		return fmt.Errorf("generator at depth %d: %w", depth, err)
	}
	kept := plan.Filter(produced, r.rc.Exclusions)
	r.log.Debug("expanded generator", "depth", depth, "produced", len(produced), "kept", len(kept))
	if r.e.cfg.Trace != nil {
		r.e.cfg.Trace.EmitExpansion(depth, describe(produced), describe(kept))
	}
	return r.walk(kept, depth+1)
}

func (r *run) execute(d directive.Directive, depth int) error {
	idx := r.seq
	r.seq++
	tw := r.e.cfg.Trace
	if tw != nil {
		tw.EmitDirectiveStart(idx, d.String(), depth)
	}

	start := time.Now()
	err := r.invoke(d)
	elapsed := time.Since(start)

	if err != nil {
		if tw != nil {
			tw.EmitDirectiveComplete(idx, d.String(), trace.StatusFailed, elapsed,
				&trace.Failure{Kind: FailureKind(err), Message: err.Error()})
		}
		return err
	}
	if tw != nil {
		tw.EmitDirectiveComplete(idx, d.String(), trace.StatusSuccess, elapsed, nil)
	}
	r.log.Debug("directive executed", "index", idx, "directive", d.String())
	r.executed = append(r.executed, d)
	return nil
}

func (r *run) invoke(d directive.Directive) error {
	u, err := r.e.cfg.Units.Lookup(d.Target)
	if d.Operation == directive.OpDisable {
		if err != nil {
			return &DeactivationError{Target: d.Target, Err: err}
		}
		da, ok := u.(unit.Deactivator)
		if !ok {
			return &DeactivationError{Target: d.Target, Err: ErrNoDeactivate}
		}
		if err := da.Deactivate(r.consumer, slices.Clone(d.Args)); err != nil {
			return &DeactivationError{Target: d.Target, Err: err}
		}
		return nil
	}

	if err != nil {
		return &ActivationError{Target: d.Target, Err: err}
	}
	if d.MinVersion != "" {
		if err := r.checkVersion(d, u); err != nil {
			return err
		}
	}
	if err := u.Activate(r.consumer, slices.Clone(d.Args)); err != nil {
		return &ActivationError{Target: d.Target, Err: err}
	}
	return nil
}

func (r *run) checkVersion(d directive.Directive, u unit.Unit) error {
	var actual string
	if v, ok := u.(unit.Versioned); ok {
		actual = v.Version()
	}
	ok := versionSatisfies(actual, d.MinVersion)
	if r.e.cfg.Trace != nil {
		r.e.cfg.Trace.EmitVersionChecked(d.Target, d.MinVersion, actual, ok)
	}
	if !ok {
		return &VersionMismatchError{Target: d.Target, Required: d.MinVersion, Actual: actual}
	}
	return nil
}

// versionSatisfies reports whether actual >= required. An absent or
// unparseable actual version never satisfies a requirement.
func versionSatisfies(actual, required string) bool {
	if actual == "" {
		return false
	}
	req, err := directive.ParseVersion(required)
	if err != nil {
		return false
	}
	have, err := directive.ParseVersion(actual)
	if err != nil {
		return false
	}
	return !have.LessThan(req)
}

func describe(ds []directive.Directive) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
