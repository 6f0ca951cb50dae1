/*
Package HP implements Michael's hazard pointer reclamation.

Each attached thread owns a record holding a fixed number of guards and a list of retired nodes. When the list reaches the threshold, the thread scans: it snapshots every guard of every record and disposes the retired nodes nobody publishes. Records live in a push-only lock-free list, so scans can walk it while other threads attach and detach.

# Detach
A detaching thread clears its guards, adopts what detached threads left, and scans. Whatever is still guarded by other threads stays on its record, which is then marked free. Threshold scans end with a help scan, and explicit scans start with one, that adopts the retired nodes left on free records, so nothing is ever dropped. Close disposes whatever is left once no thread is attached.

# Capacity
Guards per thread are fixed by Options.HazardPointers. Asking for more is a configuration bug and fails with smr.ErrTooFewHazardPointers instead of running unprotected.
*/
package HP

import (
	"sync"
	"sync/atomic"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/internal/gid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const scheme = "hp"

type GarbageCollector struct {
	opt       smr.Options
	threshold int
	head      atomic.Pointer[record]
	metrics   *smr.MetricsSet
	stats     counters

	mu       sync.Mutex // serializes attach, detach and close
	attached int
	closed   bool
}

type counters struct {
	retired                                    *xsync.Counter // bumped by every Retire, so striped
	recordsAllocated, disposed, deferred       smr.PaddedUint64
	scans, helpScans, adopted, disposeFailures smr.PaddedUint64
}

// New creates a collector. Collectors are independent: nodes retired to one are only checked against its own guards.
func New(opt smr.Options) (*GarbageCollector, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	gc := &GarbageCollector{
		opt:       opt,
		threshold: opt.Threshold(),
		metrics:   smr.NewMetricsSet(scheme, opt.Name),
		stats:     counters{retired: xsync.NewCounter()},
	}
	log.Info("HP garbage collector created",
		zap.String("name", opt.Name),
		zap.Int("hazard-pointers", opt.HazardPointers),
		zap.Int("max-threads", opt.MaxThreads),
		zap.Int("scan-threshold", gc.threshold),
		zap.Stringer("scan-type", opt.ScanType),
		zap.Stringer("liveset", opt.Liveset))
	return gc, nil
}

func (gc *GarbageCollector) Name() string {
	return gc.opt.Name
}

func (gc *GarbageCollector) Options() smr.Options {
	return gc.opt
}

// Attach binds a record to the caller, reusing a free one when there is one.
func (gc *GarbageCollector) Attach() (*ThreadGC, error) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.closed {
		return nil, smr.ErrClosed
	}
	rec := gc.acquireRecord()
	rec.owner = gid.Current()
	gc.attached++
	gc.metrics.Attached.Inc()
	log.Debug("HP thread attached", zap.String("name", gc.opt.Name), zap.Int64("goroutine", rec.owner), zap.Int("inherited", len(rec.retired)))
	return &ThreadGC{gc: gc, rec: rec}, nil
}

// AttachThread implements smr.Domain.
func (gc *GarbageCollector) AttachThread() (smr.Thread, error) {
	t, err := gc.Attach()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (gc *GarbageCollector) acquireRecord() *record {
	for r := gc.head.Load(); r != nil; r = r.next {
		if !r.active.Load() && r.active.CompareAndSwap(false, true) {
			return r
		}
	}
	r := newRecord(&gc.opt)
	r.active.Store(true)
	for {
		h := gc.head.Load()
		r.next = h
		if gc.head.CompareAndSwap(h, r) {
			break
		}
	}
	gc.stats.recordsAllocated.Add(1)
	return r
}

func (gc *GarbageCollector) release(rec *record) {
	rec.guards.makeFree()
	gc.helpScan(rec)
	gc.scan(rec)

	gc.mu.Lock()
	left, owner := len(rec.retired), rec.owner
	rec.owner = 0
	rec.active.Store(false)
	gc.attached--
	gc.mu.Unlock()

	gc.metrics.Attached.Dec()
	log.Debug("HP thread detached", zap.String("name", gc.opt.Name), zap.Int64("goroutine", owner), zap.Int("left", left))
}

// Close disposes every retired node left. It fails with smr.ErrThreadsAttached while any thread is attached, and later attaches fail with smr.ErrClosed.
func (gc *GarbageCollector) Close() error {
	gc.mu.Lock()
	if gc.closed {
		gc.mu.Unlock()
		return nil
	}
	if gc.attached > 0 {
		n := gc.attached
		gc.mu.Unlock()
		return errors.Annotatef(smr.ErrThreadsAttached, "%d threads attached to %s", n, gc.opt.Name)
	}
	gc.closed = true
	var left []smr.Retired
	for r := gc.head.Load(); r != nil; r = r.next {
		left = append(left, r.retired...)
		r.retired = nil
	}
	gc.mu.Unlock()

	gc.dispose(left)
	gc.metrics.Delete()
	log.Info("HP garbage collector closed", zap.String("name", gc.opt.Name), zap.Int("disposed", len(left)))
	return nil
}

func (gc *GarbageCollector) dispose(rs []smr.Retired) {
	if len(rs) == 0 {
		return
	}
	gc.stats.disposed.Add(uint64(len(rs)))
	if failed := smr.Dispose(rs, gc.metrics); failed > 0 {
		gc.stats.disposeFailures.Add(uint64(failed))
	}
}

func (gc *GarbageCollector) exhausted(rec *record, want int) {
	log.Error("HP guards exhausted, raise hazard-pointers",
		zap.String("name", gc.opt.Name),
		zap.Int("hazard-pointers", rec.guards.capacity()),
		zap.Int("available", rec.guards.available()),
		zap.Int("wanted", want))
}

type Statistics struct {
	HazardPointers   int
	MaxThreads       int
	Threshold        int
	RecordsAllocated uint64
	Attached         int
	Retired          uint64
	Disposed         uint64
	Deferred         uint64 // cumulative count of retired nodes a scan found guarded
	Scans            uint64
	HelpScans        uint64
	Adopted          uint64
	DisposeFailures  uint64
}

// Pending is the number of retired nodes not disposed yet.
func (s Statistics) Pending() uint64 {
	return s.Retired - s.Disposed
}

// Statistics is a snapshot; counters are read one by one, so they are only consistent when the collector is quiet.
func (gc *GarbageCollector) Statistics() Statistics {
	gc.mu.Lock()
	attached := gc.attached
	gc.mu.Unlock()
	return Statistics{
		HazardPointers:   gc.opt.HazardPointers,
		MaxThreads:       gc.opt.MaxThreads,
		Threshold:        gc.threshold,
		RecordsAllocated: gc.stats.recordsAllocated.Load(),
		Attached:         attached,
		Retired:          uint64(gc.stats.retired.Value()),
		Disposed:         gc.stats.disposed.Load(),
		Deferred:         gc.stats.deferred.Load(),
		Scans:            gc.stats.scans.Load(),
		HelpScans:        gc.stats.helpScans.Load(),
		Adopted:          gc.stats.adopted.Load(),
		DisposeFailures:  gc.stats.disposeFailures.Load(),
	}
}
