/*
Package smr is the reclamation capability shared by every lock-free container in this module. A container never frees a node it unlinked; it retires it, and a reclamation scheme (see packages HP and PTB) decides when no goroutine can still be reading through it.

# Guards
Before dereferencing a shared pointer, a goroutine publishes it in a Guard and checks that the source still holds the same pointer (see Protect). While the guard holds that address, no scheme disposes a retired node at that address. Guards hold addresses only: they don't keep anything alive for the Go collector, the container and the retired record do that.

# Retire
Retire hands a node over to the scheme together with its disposer. The node must already be unreachable from the container. The disposer is called exactly once, at some later point, by whichever goroutine proves the node unguarded. Retirements are per call, not per address, so a node recycled to the same address and retired again is disposed again.

# Threads
Every goroutine using a Domain attaches first and detaches when done. Thread handles are not shared between goroutines; see package threading for goroutine-bound attachment.

# Unbounded retention
A scan never blocks and never fails. If every retired node stays guarded the retired list simply grows, which is a memory cost and not a correctness failure.
*/
package smr

import (
	"sync/atomic"
	"unsafe"
)

// Guard is a single hazard slot owned by one goroutine.
type Guard interface {
	// Publish announces p. It's a sequentially consistent store, so it is ordered before every later read through p.
	Publish(p unsafe.Pointer)
	// Get returns the published address, 0 if cleared.
	Get() uintptr
	// Clear drops protection. Clearing a cleared guard does nothing.
	Clear()
	// Release clears the guard and hands the slot back. The guard must not be used afterward.
	Release()
}

// Thread is one goroutine's attachment to a Domain.
type Thread interface {
	// Guard allocates a guard. It fails with ErrTooFewHazardPointers when the scheme is configured with fewer guards than the caller holds at once.
	Guard() (Guard, error)
	// Retire schedules r for disposal once it's unguarded. It may run a scan.
	Retire(r Retired)
	// Scan disposes every retired node of this thread that no guard publishes.
	Scan()
	// Detach flushes this thread's retirements and gives its resources back. The handle is dead afterward.
	Detach() error
}

// Domain is a reclamation scheme instance. Containers sharing nodes must share a Domain.
type Domain interface {
	Name() string
	AttachThread() (Thread, error)
	Close() error
}

// Protect publishes the pointer held by src in g and returns it once src is seen to still hold it, so the result is safe to dereference until g changes.
func Protect[T any](g Guard, src *atomic.Pointer[T]) *T {
	for p := src.Load(); ; {
		g.Publish(unsafe.Pointer(p))
		if q := src.Load(); q == p {
			return p
		} else {
			p = q
		}
	}
}

// Retire is the typed form of Thread.Retire.
func Retire[T any](t Thread, p *T, dispose func(*T)) {
	t.Retire(NewRetired(p, dispose))
}

// MustGuard is Thread.Guard for callers that treat exhaustion as a configuration bug.
func MustGuard(t Thread) Guard {
	g, err := t.Guard()
	if err != nil {
		panic(err)
	}
	return g
}

// Guards allocates n guards from t, releasing the ones it got if it can't get all of them.
func Guards(t Thread, n int) ([]Guard, error) {
	gs := make([]Guard, 0, n)
	for range n {
		g, err := t.Guard()
		if err != nil {
			ReleaseAll(gs)
			return nil, err
		}
		gs = append(gs, g)
	}
	return gs, nil
}

// ReleaseAll releases every guard in gs.
func ReleaseAll(gs []Guard) {
	for i := len(gs) - 1; i >= 0; i-- {
		gs[i].Release()
	}
}
