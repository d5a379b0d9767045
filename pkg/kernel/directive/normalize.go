package directive

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	markerFront  = "<"
	markerBack   = ">"
	markerNegate = "-"
)

var targetPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:/@+-]*$`)

// Normalize parses a raw directive list into directives, preserving order.
// Elements that are already Directive values pass through unchanged, so
// normalizing a normalized list is the identity.
func Normalize(raw []any) ([]Directive, error) {
	return normalize(raw, false)
}

// NormalizeGenerated parses the output of a Generator. Ordering markers are
// rejected there: an expansion always sits at its point of origin.
func NormalizeGenerated(raw []any) ([]Directive, error) {
	return normalize(raw, true)
}

func normalize(raw []any, generated bool) ([]Directive, error) {
	out := make([]Directive, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		at := i
		var (
			d     Directive
			named bool
			err   error
		)
		switch v := raw[i].(type) {
		case Directive:
			d = v
		case Generator:
			d = dynamic(v)
		case func(*Context) ([]any, error):
			d = dynamic(v)
		case string:
			d, err = parseToken(i, v)
			if err != nil {
				if bareMarkers(v) && i+1 < len(raw) && isGenerator(raw[i+1]) {
					return nil, malformed(i, v, "ordering or negation marker cannot apply to a generator")
				}
				return nil, err
			}
			named = true
		case map[string]any:
			d, err = parseVersioned(i, v)
			if err != nil {
				return nil, err
			}
			named = true
		case []any, []string:
			return nil, malformed(i, v, "argument list without a preceding name")
		default:
			return nil, malformed(i, v, "unsupported element type %T", v)
		}

		if named && i+1 < len(raw) {
			if args, ok := asArgs(raw[i+1]); ok {
				d.Args = args
				d.HasArgs = true
				i++
			}
		}

		if generated && !d.IsDynamic() && d.OrderClass != OrderNormal {
			return nil, malformed(at, raw[at], "ordering marker %q not allowed in generated directives", d.OrderClass)
		}
		out = append(out, d)
	}
	return out, nil
}

func dynamic(g Generator) Directive {
	return Directive{Kind: KindDynamic, Generator: g}
}

// parseToken splits "[<|>][-]target".
func parseToken(i int, tok string) (Directive, error) {
	d := Directive{Kind: KindStatic, Operation: OpEnable, OrderClass: OrderNormal}
	rest := tok
	switch {
	case strings.HasPrefix(rest, markerFront):
		d.OrderClass = OrderFront
		rest = rest[1:]
	case strings.HasPrefix(rest, markerBack):
		d.OrderClass = OrderBack
		rest = rest[1:]
	}
	if strings.HasPrefix(rest, markerNegate) {
		d.Operation = OpDisable
		rest = rest[1:]
	}
	if rest == "" {
		return Directive{}, malformed(i, tok, "empty target")
	}
	if !targetPattern.MatchString(rest) {
		return Directive{}, malformed(i, tok, "invalid target identifier %q", rest)
	}
	d.Target = rest
	return d, nil
}

func parseVersioned(i int, m map[string]any) (Directive, error) {
	if len(m) != 1 {
		return Directive{}, malformed(i, m, "version mapping must have exactly one entry, got %d", len(m))
	}
	for name, ver := range m {
		d, err := parseToken(i, name)
		if err != nil {
			return Directive{}, err
		}
		v, err := versionString(ver)
		if err != nil {
			return Directive{}, malformed(i, m, "target %s: %s", d.Target, err)
		}
		d.MinVersion = v
		return d, nil
	}
	panic("unreachable")
}

// versionString accepts the scalar shapes YAML and Go callers produce. A
// float has already lost its source text; documents keep versions as text.
func versionString(v any) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case uint64:
		s = strconv.FormatUint(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case *semver.Version:
		if x == nil {
			return "", fmt.Errorf("nil version")
		}
		s = x.Original()
	default:
		return "", fmt.Errorf("version must be a number or string, got %T", v)
	}
	if _, err := ParseVersion(s); err != nil {
		return "", err
	}
	return s, nil
}

// ParseVersion parses a version requirement or a unit's reported version.
// Short forms such as "1.5" are accepted and read as 1.5.0. Components are
// dotted integers, not decimals: "1.05" is 1.5.0 and "1.10" is above "1.9".
func ParseVersion(s string) (*semver.Version, error) {
	if s == "" {
		return nil, fmt.Errorf("empty version")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

func asArgs(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return cloneArgs(x), true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func isGenerator(v any) bool {
	switch v.(type) {
	case Generator, func(*Context) ([]any, error):
		return true
	}
	return false
}

// bareMarkers reports whether tok is made only of marker characters.
func bareMarkers(tok string) bool {
	if tok == "" {
		return false
	}
	return strings.Trim(tok, markerFront+markerBack+markerNegate) == ""
}
