package tuning

import (
	"fmt"
	"time"
)

// Source indicates where the current effective value comes from.
type Source int

const (
	SourceDefault Source = iota
	SourceRuntimeSet
)

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceRuntimeSet:
		return "runtime-set"
	default:
		return "unknown"
	}
}

// MarshalText makes Source render as its name in JSON.
func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "default":
		*s = SourceDefault
	case "runtime-set":
		*s = SourceRuntimeSet
	default:
		return fmt.Errorf("tuning: unknown source %q", b)
	}
	return nil
}

// Type indicates a tuning variable type.
type Type string

const (
	TypeInt64    Type = "int64"
	TypeDuration Type = "duration"
	TypeEnum     Type = "enum"
)

// Constraints is a summary of validations attached to a variable.
type Constraints struct {
	Min *string `json:"min,omitempty"`
	Max *string `json:"max,omitempty"`

	EnumAllowed []string `json:"enumAllowed,omitempty"`
}

// Item is a point-in-time view of a single variable.
type Item struct {
	Key  string `json:"key"`
	Type Type   `json:"type"`

	// Value is the current effective value, or "<redacted>".
	Value any `json:"value"`
	// DefaultValue is the registered default value, or "<redacted>".
	DefaultValue any `json:"defaultValue"`

	Source Source `json:"source"`

	// LastUpdatedAt is the timestamp of the last successful runtime write (Set/Reset*).
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`

	Constraints Constraints `json:"constraints"`
}

// Snapshot is a view of all registered variables.
type Snapshot struct {
	Items []Item `json:"items"`
}

// OverrideItem is an exported override record for ops workflows.
//
// Value is the string form accepted by SetFromString for the same key.
type OverrideItem struct {
	Key   string `json:"key"`
	Type  Type   `json:"type"`
	Value string `json:"value"`
}
