package tuning

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DurationVar is a runtime-tunable time.Duration.
type DurationVar = Var[time.Duration]

// Int64Var is a runtime-tunable int64.
type Int64Var = Var[int64]

// EnumVar is a runtime-tunable string restricted to an allowed set.
type EnumVar = Var[string]

// Duration registers a time.Duration variable. SetFromString accepts Go duration syntax.
func (t *Tuning) Duration(key string, def time.Duration, opts ...Option[time.Duration]) (*DurationVar, error) {
	parse := func(s string) (time.Duration, error) { return time.ParseDuration(strings.TrimSpace(s)) }
	return newVar(t, key, TypeDuration, def, parse, time.Duration.String, opts)
}

// Int64 registers an int64 variable. SetFromString accepts base-10 integers.
func (t *Tuning) Int64(key string, def int64, opts ...Option[int64]) (*Int64Var, error) {
	parse := func(s string) (int64, error) { return strconv.ParseInt(strings.TrimSpace(s), 10, 64) }
	format := func(x int64) string { return strconv.FormatInt(x, 10) }
	return newVar(t, key, TypeInt64, def, parse, format, opts)
}

// Enum registers a string enum. allowed must be non-empty without duplicates; its order is kept
// in Snapshot output.
//
// normalize, if non-nil, is applied to the default and to every SetFromString input before the
// allowed check (tuningslog uses it for case-insensitive level names). ok=false rejects the input.
func (t *Tuning) Enum(key, def string, allowed []string, normalize func(string) (string, bool), opts ...Option[string]) (*EnumVar, error) {
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: %q enum allowed list is required", ErrInvalidConfig, key)
	}
	allowed = slices.Clone(allowed)
	for i, s := range allowed {
		if slices.Contains(allowed[:i], s) {
			return nil, fmt.Errorf("%w: %q enum allowed contains duplicate %q", ErrInvalidConfig, key, s)
		}
	}
	if normalize == nil {
		normalize = func(s string) (string, bool) { return s, true }
	}
	if nv, ok := normalize(def); ok {
		def = nv
	} else {
		return nil, fmt.Errorf("%w: %q default enum value rejected by normalizer: %q", ErrInvalidConfig, key, def)
	}

	parse := func(s string) (string, error) {
		nv, ok := normalize(s)
		if !ok {
			return "", errors.New("rejected by normalizer")
		}
		return nv, nil
	}
	inSet := func(v *Var[string]) {
		v.constraints.EnumAllowed = allowed
		v.checks = append(v.checks, func(x string) error {
			if !slices.Contains(allowed, x) {
				return fmt.Errorf("must be one of %v, got %q", allowed, x)
			}
			return nil
		})
	}
	opts = append([]Option[string]{inSet}, opts...)
	return newVar(t, key, TypeEnum, def, parse, func(s string) string { return s }, opts)
}
