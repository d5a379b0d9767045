package unit

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Ledger is an in-memory Consumer that records which capabilities are
// active. Enabling adds a target (and its symbols), disabling removes
// symbols or the whole target, so a later directive can undo an earlier one.
type Ledger struct {
	id string

	mu     sync.Mutex
	active map[string]map[string]struct{}
	events []Event
}

// Event is one operation applied to a Ledger.
type Event struct {
	Op     string `json:"op"` // enable, disable
	Target string `json:"target"`
	Args   []any  `json:"args,omitempty"`
}

func (e Event) String() string {
	if len(e.Args) == 0 {
		return e.Op + " " + e.Target
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprint(a)
	}
	return e.Op + " " + e.Target + "(" + strings.Join(parts, ",") + ")"
}

// NewLedger returns an empty ledger with the given identity.
func NewLedger(id string) *Ledger {
	return &Ledger{id: id, active: make(map[string]map[string]struct{})}
}

// ID implements Consumer.
func (l *Ledger) ID() string { return l.id }

// Enable marks target active, adding any string symbols in args.
func (l *Ledger) Enable(target string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.active[target]
	if !ok {
		set = make(map[string]struct{})
		l.active[target] = set
	}
	for _, a := range args {
		set[fmt.Sprint(a)] = struct{}{}
	}
	l.events = append(l.events, Event{Op: "enable", Target: target, Args: slices.Clone(args)})
}

// Disable removes the given symbols from target, or the whole target when
// args is empty.
func (l *Ledger) Disable(target string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(args) == 0 {
		delete(l.active, target)
	} else if set, ok := l.active[target]; ok {
		for _, a := range args {
			delete(set, fmt.Sprint(a))
		}
	}
	l.events = append(l.events, Event{Op: "disable", Target: target, Args: slices.Clone(args)})
}

// IsActive reports whether target is currently enabled.
func (l *Ledger) IsActive(target string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[target]
	return ok
}

// Symbols returns the active symbols of target, sorted.
func (l *Ledger) Symbols(target string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Sorted(maps.Keys(l.active[target]))
}

// Active renders the active set as sorted "Target" / "Target(a,b)" strings.
func (l *Ledger) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.active))
	for _, target := range slices.Sorted(maps.Keys(l.active)) {
		syms := slices.Sorted(maps.Keys(l.active[target]))
		if len(syms) == 0 {
			out = append(out, target)
			continue
		}
		out = append(out, target+"("+strings.Join(syms, ",")+")")
	}
	return out
}

// Events returns a copy of the operation log.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// StubConfig describes a Stub unit.
type StubConfig struct {
	Name       string
	Version    string
	Fail       string // when set, Activate and Deactivate fail with this message
	Deactivate bool   // whether the unit supports disable directives
}

// Stub is a configurable unit that records its effects in a Ledger
// consumer. Other consumers are accepted and left untouched.
type Stub struct {
	cfg StubConfig
}

// NewStub builds a stub unit. Stubs without Deactivate do not implement
// Deactivator.
func NewStub(cfg StubConfig) Unit {
	s := &Stub{cfg: cfg}
	if cfg.Deactivate {
		return s
	}
	return activateOnly{s}
}

// Activate implements Unit.
func (s *Stub) Activate(c Consumer, args []any) error {
	if s.cfg.Fail != "" {
		return fmt.Errorf("%s", s.cfg.Fail)
	}
	if l, ok := c.(*Ledger); ok {
		l.Enable(s.cfg.Name, args)
	}
	return nil
}

// Deactivate implements Deactivator.
func (s *Stub) Deactivate(c Consumer, args []any) error {
	if s.cfg.Fail != "" {
		return fmt.Errorf("%s", s.cfg.Fail)
	}
	if l, ok := c.(*Ledger); ok {
		l.Disable(s.cfg.Name, args)
	}
	return nil
}

// Version implements Versioned.
func (s *Stub) Version() string { return s.cfg.Version }

type activateOnly struct{ s *Stub }

func (a activateOnly) Activate(c Consumer, args []any) error { return a.s.Activate(c, args) }
func (a activateOnly) Version() string                       { return a.s.Version() }
