package HP

import (
	"cmp"
	"slices"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/internal/liveset"
)

// scan disposes the retirements of rec that no guard publishes. Disposers run on the caller; a disposer that retires lands on a fresh list and does not scan again.
func (gc *GarbageCollector) scan(rec *record) {
	if rec.scanning || len(rec.retired) == 0 {
		return
	}
	rec.scanning = true
	gc.stats.scans.Add(1)
	gc.metrics.Scans.Inc()

	batch := rec.retired
	rec.retired, rec.spare = rec.spare[:0], nil

	var kept int
	if gc.opt.ScanType == smr.InPlace {
		kept = gc.partitionInPlace(rec, batch)
	} else {
		kept = gc.partitionClassic(rec, batch)
	}
	rec.retired = append(rec.retired, batch[:kept]...)
	if kept > 0 {
		gc.stats.deferred.Add(uint64(kept))
		gc.metrics.Deferred.Add(float64(kept))
	}
	gc.dispose(batch[kept:])

	clear(batch)
	rec.spare = batch[:0]
	rec.scanning = false
}

// partitionClassic moves the guarded entries of batch to its front and returns their count.
func (gc *GarbageCollector) partitionClassic(rec *record, batch []smr.Retired) int {
	if rec.live == nil {
		rec.live = liveset.New(gc.opt.Liveset, gc.opt.MaxThreads*gc.opt.HazardPointers)
	}
	live := rec.live
	live.Reset()
	gc.forEachHazard(live.Add)
	live.Seal()

	kept := 0
	for j := range batch {
		if live.Has(batch[j].Addr) {
			batch[kept], batch[j] = batch[j], batch[kept]
			kept++
		}
	}
	return kept
}

// partitionInPlace sorts batch by address and marks the entries hit by a published guard instead of building a liveset.
func (gc *GarbageCollector) partitionInPlace(rec *record, batch []smr.Retired) int {
	slices.SortFunc(batch, func(a, b smr.Retired) int {
		return cmp.Compare(a.Addr, b.Addr)
	})
	rec.marks.Reset(len(batch))
	gc.forEachHazard(func(addr uintptr) {
		i, found := slices.BinarySearchFunc(batch, addr, func(r smr.Retired, a uintptr) int {
			return cmp.Compare(r.Addr, a)
		})
		// the same address may be retired more than once
		for ; found && i < len(batch) && batch[i].Addr == addr; i++ {
			rec.marks.Up(i)
		}
	})

	kept := 0
	for j := range batch {
		if rec.marks.Get(j) {
			batch[kept], batch[j] = batch[j], batch[kept]
			kept++
		}
	}
	return kept
}

// forEachHazard calls f with every non-zero guard of every record, active or not.
func (gc *GarbageCollector) forEachHazard(f func(uintptr)) {
	for r := gc.head.Load(); r != nil; r = r.next {
		for i := range r.guards.arr {
			if addr := r.guards.arr[i].Get(); addr != 0 {
				f(addr)
			}
		}
	}
}

// helpScan adopts the retirements left on free records. A record is held through its active flag while its list is moved, so an attach can't take it meanwhile.
func (gc *GarbageCollector) helpScan(rec *record) {
	if rec.scanning {
		return
	}
	gc.stats.helpScans.Add(1)
	gc.metrics.HelpScans.Inc()
	for r := gc.head.Load(); r != nil; r = r.next {
		if r == rec || r.active.Load() || !r.active.CompareAndSwap(false, true) {
			continue
		}
		if n := len(r.retired); n > 0 {
			rec.retired = append(rec.retired, r.retired...)
			clear(r.retired)
			r.retired = r.retired[:0]
			gc.stats.adopted.Add(uint64(n))
			gc.metrics.Adopted.Add(float64(n))
		}
		r.active.Store(false)
		if len(rec.retired) >= gc.threshold {
			gc.scan(rec)
		}
	}
}
