// Package clock implements a vector clock with a deterministic total order
// over causally concurrent clocks, so that every node in the overlay picks
// the same winner without coordination.
package clock

import "sort"

// TemporalRelation describes how one clock relates to another.
type TemporalRelation int

const (
	// Equal means both clocks are pointwise identical.
	Equal TemporalRelation = iota
	// Caused means the receiver happened-before the other clock.
	Caused
	// EffectOf means the receiver happened-after the other clock.
	EffectOf
	// ConcurrentGreater means the clocks are concurrent and the receiver
	// wins the deterministic tie-break.
	ConcurrentGreater
	// ConcurrentSmaller means the clocks are concurrent and the other
	// clock wins the deterministic tie-break.
	ConcurrentSmaller
)

func (t TemporalRelation) String() string {
	switch t {
	case Equal:
		return "Equal"
	case Caused:
		return "Caused"
	case EffectOf:
		return "EffectOf"
	case ConcurrentGreater:
		return "ConcurrentGreater"
	case ConcurrentSmaller:
		return "ConcurrentSmaller"
	default:
		return "Unknown"
	}
}

// VectorClock maps a host identifier to a monotonically increasing counter.
// A missing key is semantically zero. A nil VectorClock behaves as an empty
// clock for every method except Incr, which panics on it.
type VectorClock map[string]uint64

// New returns an empty vector clock.
func New() VectorClock {
	return make(VectorClock)
}

// Incr increments the counter for host in place.
func (v VectorClock) Incr(host string) {
	v[host]++
}

// IncrClone returns a copy of v with host's counter incremented by one,
// leaving v unmodified.
func (v VectorClock) IncrClone(host string) VectorClock {
	out := v.clone()
	out[host]++
	return out
}

func (v VectorClock) clone() VectorClock {
	out := make(VectorClock, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Equal reports whether v and other are pointwise identical.
func (v VectorClock) Equal(other VectorClock) bool {
	for k, val := range v {
		if other[k] != val {
			return false
		}
	}
	for k, val := range other {
		if v[k] != val {
			return false
		}
	}
	return true
}

// Merge returns the pointwise maximum of v and other across the union of
// their keys. Merge is commutative, associative, and idempotent.
func (v VectorClock) Merge(other VectorClock) VectorClock {
	out := v.clone()
	for k, val := range other {
		if val > out[k] {
			out[k] = val
		}
	}
	return out
}

// supersededBy reports whether v happened-before other: every counter in v
// is less than or equal to the corresponding counter in other, and at least
// one is strictly smaller.
func (v VectorClock) supersededBy(other VectorClock) bool {
	hasSmaller := false

	for host, selfN := range v {
		otherN := other[host]
		if selfN > otherN {
			return false
		}
		if selfN < otherN {
			hasSmaller = true
		}
	}
	for host, otherN := range other {
		selfN := v[host]
		if selfN > otherN {
			return false
		}
		if selfN < otherN {
			hasSmaller = true
		}
	}

	return hasSmaller
}

// isGreaterConcurrentThan implements the deterministic tie-break: sort both
// key sets, compare lengths, then the key sequences lexicographically, then
// (if the key sets are identical) walk sorted keys comparing counters in
// order, first difference wins.
func (v VectorClock) isGreaterConcurrentThan(other VectorClock) bool {
	ownKeys := v.sortedKeys()
	otherKeys := other.sortedKeys()

	if len(ownKeys) != len(otherKeys) {
		return len(ownKeys) > len(otherKeys)
	}

	for i := range ownKeys {
		if ownKeys[i] != otherKeys[i] {
			return ownKeys[i] > otherKeys[i]
		}
	}

	// Identical key sequences: walk counters in sorted-key order.
	for _, k := range ownKeys {
		if v[k] != other[k] {
			return v[k] > other[k]
		}
	}

	// Every counter equal: the clocks were in fact Equal. TemporalRelation
	// never reaches this branch with equal keys-and-counters, since Equal is
	// checked before either concurrent branch.
	return false
}

func (v VectorClock) sortedKeys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TemporalRelation computes how v relates to other: causal order first,
// then the deterministic tie-break for concurrent clocks.
func (v VectorClock) TemporalRelation(other VectorClock) TemporalRelation {
	if v.Equal(other) {
		return Equal
	}
	if v.supersededBy(other) {
		return Caused
	}
	if other.supersededBy(v) {
		return EffectOf
	}
	if v.isGreaterConcurrentThan(other) {
		return ConcurrentGreater
	}
	return ConcurrentSmaller
}
