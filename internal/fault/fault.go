// Package fault maps sensor snapshots to the set of active engine fault conditions.
//
// Fault kinds are stable names. They are exported to logs, metrics labels and
// the status API by name so that tooling never depends on a flag encoding.
package fault

import (
	"slices"
	"strings"
)

// Kind names one fault condition.
type Kind string

const (
	CoolantOverTemp Kind = "CoolantOverTemp"
	OilOverTemp     Kind = "OilOverTemp"
	BatteryLow      Kind = "BatteryLow"
	LowOilPressure  Kind = "LowOilPressure"
	AlreadyRunning  Kind = "AlreadyRunning"
	StartFailed     Kind = "StartFailed"

	// StopUnresolved is latched when the engine is still turning after the
	// shutdown wait expired.
	StopUnresolved Kind = "StopUnresolved"

	// SensorLost is raised by the supervisor when acquisition keeps failing.
	SensorLost Kind = "SensorLost"
)

// Kinds lists every fault kind in reporting order.
var Kinds = []Kind{
	CoolantOverTemp,
	OilOverTemp,
	BatteryLow,
	LowOilPressure,
	AlreadyRunning,
	StartFailed,
	StopUnresolved,
	SensorLost,
}

func (k Kind) String() string {
	return string(k)
}

// order returns the position of k in Kinds, or len(Kinds) for unknown kinds.
func (k Kind) order() int {
	if i := slices.Index(Kinds, k); i >= 0 {
		return i
	}
	return len(Kinds)
}

// Set is an immutable set of fault kinds kept in reporting order.
// The zero value is the empty (healthy) set.
type Set struct {
	kinds []Kind
}

// NewSet builds a set from the given kinds, dropping duplicates.
func NewSet(kinds ...Kind) Set {
	var s Set
	for _, k := range kinds {
		s = s.With(k)
	}
	return s
}

// With returns a copy of s that also contains k.
func (s Set) With(k Kind) Set {
	if s.Has(k) {
		return s
	}
	kinds := make([]Kind, 0, len(s.kinds)+1)
	kinds = append(kinds, s.kinds...)
	kinds = append(kinds, k)
	slices.SortStableFunc(kinds, func(a, b Kind) int {
		return a.order() - b.order()
	})
	return Set{kinds: kinds}
}

// Union returns the kinds present in s or other.
func (s Set) Union(other Set) Set {
	out := s
	for _, k := range other.kinds {
		out = out.With(k)
	}
	return out
}

// Has reports whether k is in the set.
func (s Set) Has(k Kind) bool {
	return slices.Contains(s.kinds, k)
}

// Empty reports whether the set holds no fault, i.e. the sample is healthy.
func (s Set) Empty() bool {
	return len(s.kinds) == 0
}

// Len returns the number of active kinds.
func (s Set) Len() int {
	return len(s.kinds)
}

// Kinds returns a copy of the kinds in reporting order.
func (s Set) Kinds() []Kind {
	return slices.Clone(s.kinds)
}

// Equal reports whether both sets hold the same kinds.
func (s Set) Equal(other Set) bool {
	return slices.Equal(s.kinds, other.kinds)
}

// Strings returns the kind names, for logging and JSON.
func (s Set) Strings() []string {
	out := make([]string, len(s.kinds))
	for i, k := range s.kinds {
		out[i] = string(k)
	}
	return out
}

func (s Set) String() string {
	if s.Empty() {
		return "none"
	}
	return strings.Join(s.Strings(), ",")
}

// MarshalJSON encodes the set as a list of names.
func (s Set) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, k := range s.kinds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(string(k))
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}
