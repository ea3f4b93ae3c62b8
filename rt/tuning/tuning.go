package tuning

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Tuning holds a set of runtime-tunable variables.
//
// It is safe for concurrent use. The zero value is ready to use.
type Tuning struct {
	mu   sync.RWMutex
	vars map[string]varEntry

	// writeMu serializes writes (Set/Reset*) and onChange callbacks.
	writeMu    sync.Mutex
	writeOwner atomic.Uint64 // goroutine id (best-effort), for re-entrant write detection.
}

// New creates a new Tuning registry.
func New() *Tuning {
	return &Tuning{vars: make(map[string]varEntry)}
}

// Snapshot returns a point-in-time view of all registered variables, sorted by key.
func (t *Tuning) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	out := make([]Item, 0)
	for _, v := range t.sorted() {
		out = append(out, v.snapshot())
	}
	return Snapshot{Items: out}
}

// ExportOverrides returns the variables whose value differs from the default, sorted by key.
func (t *Tuning) ExportOverrides() []OverrideItem {
	if t == nil {
		return nil
	}
	var out []OverrideItem
	for _, v := range t.sorted() {
		if ov, ok := v.override(); ok {
			out = append(out, ov)
		}
	}
	return out
}

// SetFromString sets a registered key from its string representation (ops usage).
func (t *Tuning) SetFromString(key, value string) error {
	v, err := t.entry(key)
	if err != nil {
		return err
	}
	return v.setFromString(value)
}

// Lookup returns a point-in-time view of a single registered key.
func (t *Tuning) Lookup(key string) (Item, bool) {
	v, err := t.entry(key)
	if err != nil {
		return Item{}, false
	}
	return v.snapshot(), true
}

// ResetToDefault resets a registered key back to its default value.
func (t *Tuning) ResetToDefault(key string) error {
	v, err := t.entry(key)
	if err != nil {
		return err
	}
	return v.ResetToDefault()
}

// ResetToLastValue restores the previous effective value for a registered key (undo one step).
func (t *Tuning) ResetToLastValue(key string) error {
	v, err := t.entry(key)
	if err != nil {
		return err
	}
	return v.ResetToLastValue()
}

func (t *Tuning) entry(key string) (varEntry, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil Tuning", ErrInvalidConfig)
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	t.mu.RLock()
	v, ok := t.vars[key]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return v, nil
}

func (t *Tuning) sorted() []varEntry {
	t.mu.RLock()
	items := make([]varEntry, 0, len(t.vars))
	for _, v := range t.vars {
		items = append(items, v)
	}
	t.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Key() < items[j].Key() })
	return items
}

func (t *Tuning) register(key string, v varEntry) error {
	if t == nil {
		return fmt.Errorf("%w: nil Tuning", ErrInvalidConfig)
	}
	if err := validateKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vars == nil {
		t.vars = make(map[string]varEntry)
	}
	if _, ok := t.vars[key]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, key)
	}
	t.vars[key] = v
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		case c == '/':
			return fmt.Errorf("%w: %q contains '/' (not allowed)", ErrInvalidKey, key)
		case strings.ContainsRune(" \t\r\n", rune(c)):
			return fmt.Errorf("%w: %q contains whitespace (not allowed)", ErrInvalidKey, key)
		default:
			return fmt.Errorf("%w: %q contains invalid char %q (allowed: [A-Za-z0-9._-])", ErrInvalidKey, key, c)
		}
	}
	return nil
}
