package directive

import (
	"maps"
	"slices"
	"strings"

	"github.com/ormasoftchile/loadout/pkg/kernel/unit"
)

// Context is the read-only bag handed to layer resolution, generators and
// the exclusion filter. One Context is built per apply and discarded after.
type Context struct {
	Bundles    []string
	Exclusions *Exclusions
	Args       map[string]any
	Consumer   unit.Consumer
}

// NewContext builds a Context, copying every input so later changes by the
// caller cannot leak into an in-flight apply.
func NewContext(consumer unit.Consumer, bundles []string, ex *Exclusions, args map[string]any) *Context {
	return &Context{
		Bundles:    slices.Clone(bundles),
		Exclusions: ex.Clone(),
		Args:       maps.Clone(args),
		Consumer:   consumer,
	}
}

// WithoutBundles returns a copy of rc with no requested bundles. Parent
// layers are resolved with it so that bundles are appended once, by the
// layer being applied.
func (rc *Context) WithoutBundles() *Context {
	out := *rc
	out.Bundles = nil
	return &out
}

// HasBundle reports whether name was requested.
func (rc *Context) HasBundle(name string) bool {
	return slices.Contains(rc.Bundles, name)
}

// ConsumerID returns the consumer identity, or "" when there is none.
func (rc *Context) ConsumerID() string {
	if rc.Consumer == nil {
		return ""
	}
	return rc.Consumer.ID()
}

// Exclusions maps excluded targets to an optional symbol subset. A target
// with no subset is excluded entirely. The zero value is not usable; call
// NewExclusions.
type Exclusions struct {
	entries map[string]map[string]struct{} // nil set: whole target
}

// NewExclusions returns an empty exclusion set.
func NewExclusions() *Exclusions {
	return &Exclusions{entries: make(map[string]map[string]struct{})}
}

// ExclusionsFromMap builds a set from target → symbols; a nil symbol slice
// excludes the whole target.
func ExclusionsFromMap(m map[string][]string) *Exclusions {
	ex := NewExclusions()
	for target, syms := range m {
		if syms == nil {
			ex.ExcludeTarget(target)
		} else {
			ex.ExcludeSymbols(target, syms...)
		}
	}
	return ex
}

// ParseExclusions reads the CLI form: "Target" or "Target=sym1,sym2".
func ParseExclusions(specs []string) *Exclusions {
	ex := NewExclusions()
	for _, s := range specs {
		target, syms, found := strings.Cut(s, "=")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if !found {
			ex.ExcludeTarget(target)
			continue
		}
		var list []string
		for _, sym := range strings.Split(syms, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				list = append(list, sym)
			}
		}
		ex.ExcludeSymbols(target, list...)
	}
	return ex
}

// ExcludeTarget excludes every directive for target. It wins over any
// symbol subset recorded for the same target.
func (ex *Exclusions) ExcludeTarget(target string) *Exclusions {
	ex.entries[target] = nil
	return ex
}

// ExcludeSymbols excludes individual argument symbols of target.
func (ex *Exclusions) ExcludeSymbols(target string, symbols ...string) *Exclusions {
	set, ok := ex.entries[target]
	if ok && set == nil {
		return ex
	}
	if set == nil {
		set = make(map[string]struct{}, len(symbols))
		ex.entries[target] = set
	}
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return ex
}

// Lookup reports whether target is excluded and, if only partially, which
// symbols. whole is true when the entire target is excluded.
func (ex *Exclusions) Lookup(target string) (symbols map[string]struct{}, whole, ok bool) {
	if ex == nil {
		return nil, false, false
	}
	set, ok := ex.entries[target]
	if !ok {
		return nil, false, false
	}
	return set, set == nil, true
}

// Targets returns the excluded targets in sorted order.
func (ex *Exclusions) Targets() []string {
	if ex == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(ex.entries))
}

// Len returns the number of excluded targets.
func (ex *Exclusions) Len() int {
	if ex == nil {
		return 0
	}
	return len(ex.entries)
}

// Clone returns a deep copy; cloning nil yields an empty set.
func (ex *Exclusions) Clone() *Exclusions {
	out := NewExclusions()
	if ex == nil {
		return out
	}
	for target, set := range ex.entries {
		if set == nil {
			out.entries[target] = nil
			continue
		}
		out.entries[target] = maps.Clone(set)
	}
	return out
}

// Map renders the set as target → sorted symbols (nil for whole targets).
func (ex *Exclusions) Map() map[string][]string {
	out := make(map[string][]string, ex.Len())
	if ex == nil {
		return out
	}
	for target, set := range ex.entries {
		if set == nil {
			out[target] = nil
			continue
		}
		out[target] = slices.Sorted(maps.Keys(set))
	}
	return out
}
