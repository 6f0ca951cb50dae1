package HP

import (
	"sync/atomic"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/internal/liveset"
)

// record is the per-thread control block. Records are pushed onto the collector's list once and stay there until the collector closes; detached records are recycled by later attaches.
type record struct {
	guards  *guardAllocator
	retired []smr.Retired
	active  atomic.Bool // owned by an attached thread, or held by a help scan
	owner   int64       // goroutine id of the attaching goroutine, for diagnostics
	next    *record     // set before the record is published, never changed after

	// scan scratch space, touched only by the owner
	spare    []smr.Retired
	live     liveset.Set
	marks    smr.BitArray
	scanning bool
}

func newRecord(opt *smr.Options) *record {
	return &record{
		guards:  newGuardAllocator(opt.HazardPointers),
		retired: make([]smr.Retired, 0, opt.Threshold()),
	}
}

// ThreadGC is the handle of an attached thread. It's used by one goroutine at a time and is dead after Detach.
type ThreadGC struct {
	gc        *GarbageCollector
	rec       *record
	detaching bool // only Retire is allowed, for disposers run by the last scan
}

func (t *ThreadGC) record() *record {
	if t.rec == nil || t.detaching {
		panic(smr.ErrDetached)
	}
	return t.rec
}

// AllocGuard pops a free guard. It fails with smr.ErrTooFewHazardPointers when all of them are in use.
func (t *ThreadGC) AllocGuard() (*Guard, error) {
	g, err := t.record().guards.alloc()
	if err != nil {
		t.gc.exhausted(t.rec, 1)
	}
	return g, err
}

// Guard implements smr.Thread.
func (t *ThreadGC) Guard() (smr.Guard, error) {
	g, err := t.AllocGuard()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Guards allocates n guards or none.
func (t *ThreadGC) Guards(n int) (GuardArray, error) {
	gs, err := t.record().guards.allocN(n)
	if err != nil {
		t.gc.exhausted(t.rec, n)
	}
	return gs, err
}

// Retire appends r to this thread's retired list and scans once the list reaches the threshold.
// While detaching, scans are suppressed and r stays on the record for the next help scan.
func (t *ThreadGC) Retire(r smr.Retired) {
	rec := t.rec
	if rec == nil {
		panic(smr.ErrDetached)
	}
	rec.retired = append(rec.retired, r)
	t.gc.stats.retired.Inc()
	t.gc.metrics.Retired.Inc()
	if len(rec.retired) >= t.gc.threshold {
		t.gc.scan(rec)
		t.gc.helpScan(rec)
	}
}

// Scan adopts the leftovers of detached threads, then disposes every retirement of this thread no guard publishes.
func (t *ThreadGC) Scan() {
	rec := t.record()
	t.gc.helpScan(rec)
	t.gc.scan(rec)
}

// Detach clears every guard, adopts and scans like Scan, and gives the record back. Retirements still guarded elsewhere stay on the record and are adopted by the next help scan of any thread.
func (t *ThreadGC) Detach() error {
	if t.rec == nil || t.detaching {
		return smr.ErrNotAttached
	}
	t.detaching = true
	t.gc.release(t.rec)
	t.rec, t.detaching = nil, false
	return nil
}

// Capacity is the number of guards this thread may hold at once.
func (t *ThreadGC) Capacity() int {
	return t.record().guards.capacity()
}

// Available is the number of guards not in use.
func (t *ThreadGC) Available() int {
	return t.record().guards.available()
}

// RetiredLen is the number of retirements waiting on this thread.
func (t *ThreadGC) RetiredLen() int {
	return len(t.record().retired)
}
