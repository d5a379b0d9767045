package directive

import (
	"errors"
	"fmt"
)

// ErrMalformedDirective is the sentinel wrapped by MalformedDirectiveError.
var ErrMalformedDirective = errors.New("malformed directive")

// MalformedDirectiveError reports raw grammar that cannot be normalized.
type MalformedDirectiveError struct {
	Index  int // position in the raw list
	Value  any
	Reason string
}

// Error implements the error interface.
func (e *MalformedDirectiveError) Error() string {
	return fmt.Sprintf("malformed directive at [%d] (%s): %s", e.Index, describe(e.Value), e.Reason)
}

// Unwrap returns ErrMalformedDirective so callers can use errors.Is.
func (e *MalformedDirectiveError) Unwrap() error { return ErrMalformedDirective }

func malformed(i int, v any, reason string, args ...any) error {
	return &MalformedDirectiveError{Index: i, Value: v, Reason: fmt.Sprintf(reason, args...)}
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", x)
	case Generator, func(*Context) ([]any, error):
		return "generator"
	default:
		return fmt.Sprintf("%T", v)
	}
}
