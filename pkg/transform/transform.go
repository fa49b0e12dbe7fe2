// Package transform holds the pure per-field transforms applied by the
// record decoder. Every transform is total and non-failing except Timestamp,
// which rejects values that are not a 3-component time tuple; that failure
// aborts the whole record decode, not just the field.
package transform

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Func converts one raw field value into its storage-ready representation.
type Func func(v any) (any, error)

// ErrBadTimestamp is returned by Timestamp for values that are not a
// 3-component numeric time tuple.
var ErrBadTimestamp = errors.New("value is not a 3-component timestamp")

const (
	moduleNameCap   = 30
	functionNameCap = 40

	// NoData is returned by FormatFunction for any value that is not shaped
	// as a (module, function, arity) tuple.
	NoData = "no data"
)

// Empty is the NULL-safe sentinel Nullable substitutes for absent values.
var Empty = []any{}

// Nullable maps an absent value to the empty sentinel and passes everything
// else through unchanged.
func Nullable(v any) (any, error) {
	if v == nil {
		return Empty, nil
	}

	return v, nil
}

// Timestamp validates that v is a tuple of three numeric components
// (seconds, fractional seconds, sequence) and returns it unchanged. The sink
// accepts this structured form directly; no unit conversion happens here.
func Timestamp(v any) (any, error) {
	t, ok := v.([]any)
	if !ok || len(t) != 3 {
		return nil, fmt.Errorf("%w: %v", ErrBadTimestamp, v)
	}

	for _, c := range t {
		if _, ok := AsInt64(c); !ok {
			return nil, fmt.Errorf("%w: %v", ErrBadTimestamp, v)
		}
	}

	return v, nil
}

// ToString renders v as text truncated to limit runes. Printable values are
// used as-is; anything else gets a generic structural rendering. Never fails.
func ToString(limit int) Func {
	return func(v any) (any, error) {
		return Truncate(stringify(v), limit), nil
	}
}

// FormatFunction renders a (module, function, arity) tuple as
// "module:function/arity", with the module and function names capped at 30
// and 40 runes. Any other shape yields the literal "no data". Never fails.
func FormatFunction(v any) (any, error) {
	t, ok := v.([]any)
	if !ok || len(t) != 3 {
		return NoData, nil
	}

	mod, okMod := asString(t[0])
	fn, okFn := asString(t[1])
	arity, okArity := AsInt64(t[2])

	if !okMod || !okFn || !okArity {
		return NoData, nil
	}

	return fmt.Sprintf("%s:%s/%d", Truncate(mod, moduleNameCap), Truncate(fn, functionNameCap), arity), nil
}

// FormatStacktrace renders an arbitrary value (expected: a structured stack
// trace) as text. Purely cosmetic, never fails.
func FormatStacktrace(v any) (any, error) {
	return stringify(v), nil
}

func stringify(v any) string {
	if s, ok := asString(v); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		if utf8.Valid(s) {
			return string(s), true
		}
	}

	return "", false
}

// AsInt64 converts the numeric types the payload codec produces to int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case float32:
		if float32(int64(n)) == n {
			return int64(n), true
		}
	}

	return 0, false
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit])
}
