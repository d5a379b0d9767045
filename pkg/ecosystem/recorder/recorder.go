// Package recorder captures the unit calls of an apply and turns them into
// a scenario that `loadout test` can replay with stub units.
package recorder

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/loadout/pkg/kernel/engine"
	"github.com/ormasoftchile/loadout/pkg/kernel/schema"
	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
)

// Call records a single unit invocation.
type Call struct {
	Op     string `yaml:"op"` // enable, disable
	Target string `yaml:"target"`
	Args   []any  `yaml:"args,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Recorder wraps a unit.Lookup and captures every call made through the
// units it hands out. It is safe for concurrent use.
type Recorder struct {
	inner   unit.Lookup
	secrets []string // env var names whose values should be redacted

	mu    sync.Mutex
	calls []Call
	units map[string]schema.UnitDef
}

// New creates a recording wrapper around an existing lookup.
func New(inner unit.Lookup) *Recorder {
	return &Recorder{inner: inner, units: make(map[string]schema.UnitDef)}
}

// SetSecrets configures secret env var names whose values are redacted in
// captured arguments and errors.
func (r *Recorder) SetSecrets(envVars []string) {
	r.secrets = envVars
}

// Lookup implements unit.Lookup. The returned unit implements Deactivator
// only when the wrapped one does.
func (r *Recorder) Lookup(name string) (unit.Unit, error) {
	u, err := r.inner.Lookup(name)
	if err != nil {
		r.noteUnit(name, schema.UnitDef{Fail: r.redact(err.Error())})
		return nil, err
	}
	def := schema.UnitDef{}
	if v, ok := u.(unit.Versioned); ok {
		def.Version = v.Version()
	}
	rec := &recorded{r: r, name: name, inner: u}
	if d, ok := u.(unit.Deactivator); ok {
		def.Deactivate = true
		r.noteUnit(name, def)
		return &recordedDeactivator{recorded: rec, d: d}, nil
	}
	r.noteUnit(name, def)
	return rec, nil
}

// Calls returns a copy of the captured calls, in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Units returns the unit definitions observed so far, keyed by name.
func (r *Recorder) Units() map[string]schema.UnitDef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]schema.UnitDef, len(r.units))
	for k, v := range r.units {
		out[k] = v
	}
	return out
}

func (r *Recorder) noteUnit(name string, def schema.UnitDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, seen := r.units[name]; seen && prev.Fail != "" {
		return
	}
	r.units[name] = def
}

func (r *Recorder) record(op, target string, args []any, err error) {
	c := Call{Op: op, Target: target, Args: r.redactArgs(args)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		c.Error = r.redact(err.Error())
		def := r.units[target]
		def.Fail = c.Error
		r.units[target] = def
	}
	r.calls = append(r.calls, c)
}

// Scenario builds a scenario that reproduces res: the request that was
// applied, the units as they behaved, and the observed outcome.
func (r *Recorder) Scenario(name, layerName string, req engine.Request, res *engine.Result, active []string) schema.Scenario {
	sc := schema.Scenario{
		Name:    name,
		Layer:   layerName,
		Bundles: slices.Clone(req.Bundles),
		Exclude: exclusionSpecs(req),
		Args:    r.redactMap(req.Args),
		Units:   r.Units(),
		Expect: schema.Expectation{
			Executed: []string{},
			Active:   active,
		},
	}
	for _, d := range res.Executed {
		sc.Expect.Executed = append(sc.Expect.Executed, d.String())
	}
	if res.Error != nil {
		sc.Expect.Error = engine.FailureKind(res.Error)
	}
	return sc
}

// WriteScenario encodes sc as a one-item YAML list, ready to paste under a
// document's scenarios key.
func WriteScenario(w io.Writer, sc schema.Scenario) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode([]schema.Scenario{sc}); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	return enc.Close()
}

// SaveScenario writes sc to path.
func SaveScenario(path string, sc schema.Scenario) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteScenario(f, sc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exclusionSpecs(req engine.Request) []string {
	var out []string
	for target, syms := range req.Exclusions.Map() {
		if syms == nil {
			out = append(out, target)
			continue
		}
		out = append(out, target+"="+strings.Join(syms, ","))
	}
	slices.Sort(out)
	return out
}

// redact replaces secret values with <REDACTED>.
func (r *Recorder) redact(s string) string {
	for _, envVar := range r.secrets {
		val := os.Getenv(envVar)
		if val != "" {
			s = strings.ReplaceAll(s, val, "<REDACTED>")
		}
	}
	return s
}

func (r *Recorder) redactArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			out[i] = r.redact(s)
		} else {
			out[i] = a
		}
	}
	return out
}

// redactMap redacts secret values in a map.
func (r *Recorder) redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = r.redact(s)
		} else {
			out[k] = v
		}
	}
	return out
}

type recorded struct {
	r     *Recorder
	name  string
	inner unit.Unit
}

func (u *recorded) Activate(c unit.Consumer, args []any) error {
	err := u.inner.Activate(c, args)
	u.r.record("enable", u.name, args, err)
	return err
}

func (u *recorded) Version() string {
	if v, ok := u.inner.(unit.Versioned); ok {
		return v.Version()
	}
	return ""
}

type recordedDeactivator struct {
	*recorded
	d unit.Deactivator
}

func (u *recordedDeactivator) Deactivate(c unit.Consumer, args []any) error {
	err := u.d.Deactivate(c, args)
	u.r.record("disable", u.name, args, err)
	return err
}
