package types

import "github.com/arjunv/clipcast/pkg/clipcast/clock"

// CopyClock pairs a causal VectorClock with the identity of the peer who
// performed the most recent winning copy. It is created empty at node
// startup with the local PeerID as LastCopySrc.
type CopyClock struct {
	Clock       clock.VectorClock `json:"clock"`
	LastCopySrc PeerID            `json:"last_copy_src"`
}

// NewCopyClock builds a CopyClock from a clock snapshot and the last copier.
func NewCopyClock(c clock.VectorClock, lastCopySrc PeerID) CopyClock {
	return CopyClock{Clock: c, LastCopySrc: lastCopySrc}
}

// Equal reports whether two copy-clocks carry the same clock and last
// copier, used to decide whether a cached clipboard fetch is still valid.
func (c CopyClock) Equal(other CopyClock) bool {
	return c.Clock.Equal(other.Clock) && c.LastCopySrc.Equal(other.LastCopySrc)
}

// UpdateState reconciles current against an incoming CopyClock. Equal,
// EffectOf, and ConcurrentGreater keep current; Caused and ConcurrentSmaller
// adopt incoming.
func UpdateState(current, incoming CopyClock) CopyClock {
	switch current.Clock.TemporalRelation(incoming.Clock) {
	case clock.Caused, clock.ConcurrentSmaller:
		return incoming
	default:
		return current
	}
}
