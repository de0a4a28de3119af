package engine

import "sync/atomic"

// mode is the two-state flag described in §4.C. It is the only
// cross-component signal the Reader and the Sync Controller observe; Go's
// sync/atomic gives the publish/acquire ordering the spec requires without
// a separate lock.
type mode int32

const (
	modeIdle mode = iota
	modeSync
)

func (m mode) String() string {
	if m == modeSync {
		return "sync"
	}
	return "idle"
}

// modeGate is an atomic.Int32-backed Mode Gate.
type modeGate struct {
	v atomic.Int32
}

func (g *modeGate) load() mode {
	return mode(g.v.Load())
}

func (g *modeGate) set(m mode) {
	g.v.Store(int32(m))
}
