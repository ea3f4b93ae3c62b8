package tuning

import (
	"fmt"
	"sync/atomic"
	"time"
)

const redacted = "<redacted>"

// Var is a runtime-tunable variable of type T. Create it with Tuning.Duration, Tuning.Int64
// or Tuning.Enum.
type Var[T comparable] struct {
	t   *Tuning
	k   string
	typ Type

	def    T
	redact bool

	cur    atomic.Pointer[T]
	source atomic.Int32 // Source

	lastUpdatedAtUnixNano atomic.Int64

	// last/hasLast are protected by Tuning's write gate.
	hasLast bool
	last    T

	parse       func(string) (T, error)
	format      func(T) string
	checks      []func(T) error
	constraints Constraints
	onChange    []func(T)
}

// Option configures a Var at registration time.
type Option[T comparable] func(*Var[T])

// WithRedact hides the value in Snapshot, Lookup and ExportOverrides.
func WithRedact[T comparable]() Option[T] {
	return func(v *Var[T]) { v.redact = true }
}

// WithOnChange appends an onChange callback. See the package doc for callback semantics.
func WithOnChange[T comparable](fn func(newValue T)) Option[T] {
	return func(v *Var[T]) {
		if fn != nil {
			v.onChange = append(v.onChange, fn)
		}
	}
}

// WithMin sets an inclusive minimum.
func WithMin[T int64 | time.Duration](min T) Option[T] {
	return func(v *Var[T]) {
		s := fmt.Sprint(min)
		v.constraints.Min = &s
		v.checks = append(v.checks, func(x T) error {
			if x < min {
				return fmt.Errorf("must be >= %v, got %v", min, x)
			}
			return nil
		})
	}
}

// WithMax sets an inclusive maximum.
func WithMax[T int64 | time.Duration](max T) Option[T] {
	return func(v *Var[T]) {
		s := fmt.Sprint(max)
		v.constraints.Max = &s
		v.checks = append(v.checks, func(x T) error {
			if x > max {
				return fmt.Errorf("must be <= %v, got %v", max, x)
			}
			return nil
		})
	}
}

func newVar[T comparable](t *Tuning, key string, typ Type, def T, parse func(string) (T, error), format func(T) string, opts []Option[T]) (*Var[T], error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil Tuning", ErrInvalidConfig)
	}
	v := &Var[T]{t: t, k: key, typ: typ, def: def, parse: parse, format: format}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if err := v.check(def); err != nil {
		return nil, fmt.Errorf("%w: default value: %v", ErrInvalidConfig, err)
	}
	v.cur.Store(&def)
	v.source.Store(int32(SourceDefault))
	if err := t.register(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Var[T]) Key() string { return v.k }

// Get returns the current effective value. It is lock-free and non-blocking.
func (v *Var[T]) Get() T { return *v.cur.Load() }

// Default returns the registered default value.
func (v *Var[T]) Default() T { return v.def }

func (v *Var[T]) Source() Source { return Source(v.source.Load()) }

func (v *Var[T]) LastUpdatedAt() time.Time {
	ns := v.lastUpdatedAtUnixNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Set validates and applies newValue, then runs the onChange callbacks.
func (v *Var[T]) Set(newValue T) error {
	if err := v.check(newValue); err != nil {
		return err
	}
	if err := v.t.lockWrite(); err != nil {
		return err
	}
	defer v.t.unlockWrite()

	v.hasLast = true
	v.last = v.Get()
	v.applyLocked(newValue)
	return nil
}

func (v *Var[T]) ResetToDefault() error { return v.Set(v.def) }

// ResetToLastValue restores the value before the most recent write. It undoes one step only.
func (v *Var[T]) ResetToLastValue() error {
	if err := v.t.lockWrite(); err != nil {
		return err
	}
	defer v.t.unlockWrite()

	if !v.hasLast {
		return fmt.Errorf("%w: %q", ErrNoLastValue, v.k)
	}
	v.hasLast = false
	v.applyLocked(v.last)
	return nil
}

func (v *Var[T]) applyLocked(x T) {
	v.cur.Store(&x)
	if x == v.def {
		v.source.Store(int32(SourceDefault))
	} else {
		v.source.Store(int32(SourceRuntimeSet))
	}
	v.lastUpdatedAtUnixNano.Store(time.Now().UnixNano())
	for _, cb := range v.onChange {
		safeCall(cb, x)
	}
}

func (v *Var[T]) check(x T) error {
	for _, c := range v.checks {
		if err := c(x); err != nil {
			return fmt.Errorf("%w: %q %v", ErrInvalidValue, v.k, err)
		}
	}
	return nil
}

func (v *Var[T]) setFromString(s string) error {
	x, err := v.parse(s)
	if err != nil {
		return fmt.Errorf("%w: %q expects %s, got %q: %v", ErrInvalidValue, v.k, v.typ, s, err)
	}
	return v.Set(x)
}

func (v *Var[T]) snapshot() Item {
	val, def := any(v.format(v.Get())), any(v.format(v.def))
	if v.redact {
		val, def = redacted, redacted
	}
	return Item{
		Key:           v.k,
		Type:          v.typ,
		Value:         val,
		DefaultValue:  def,
		Source:        v.Source(),
		LastUpdatedAt: v.LastUpdatedAt(),
		Constraints:   v.constraints,
	}
}

func (v *Var[T]) override() (OverrideItem, bool) {
	cur := v.Get()
	if cur == v.def {
		return OverrideItem{}, false
	}
	if v.redact {
		return OverrideItem{Key: v.k, Type: v.typ, Value: redacted}, true
	}
	return OverrideItem{Key: v.k, Type: v.typ, Value: v.format(cur)}, true
}

func safeCall[T any](fn func(T), x T) {
	defer func() { _ = recover() }()
	fn(x)
}
