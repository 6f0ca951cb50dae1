/*
Package PTB implements Herlihy, Luchangco and Moir's pass-the-buck reclamation behind the same interfaces as package HP.

Unlike HP, guards come from a pool shared by the whole collector, so a thread can hold as many as it needs and Guard never fails. Retirements go to one collector-wide buffer instead of per-thread lists; whoever pushes it over the threshold liberates it: takes it whole, disposes what no guard of the pool publishes, and pushes the rest back. Only one liberate runs at a time, a thread that finds one running just leaves its retirement in the buffer.
*/
package PTB

import (
	"sync"
	"sync/atomic"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/internal/gid"
	"github.com/g-m-twostay/go-smr/internal/liveset"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const scheme = "ptb"

type GarbageCollector struct {
	opt       smr.Options
	threshold int64
	pool      guardPool
	buffer    retiredBuffer
	metrics   *smr.MetricsSet

	liberating atomic.Bool
	live       liveset.Set // used only by the liberating thread

	retired                                        *xsync.Counter
	disposed, deferred, liberates, disposeFailures smr.PaddedUint64

	mu       sync.Mutex
	attached int
	closed   bool
}

func New(opt smr.Options) (*GarbageCollector, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	gc := &GarbageCollector{
		opt:       opt,
		threshold: int64(opt.Threshold()),
		metrics:   smr.NewMetricsSet(scheme, opt.Name),
		live:      liveset.New(opt.Liveset, opt.MaxThreads*opt.InitialGuards),
		retired:   xsync.NewCounter(),
	}
	log.Info("PTB garbage collector created",
		zap.String("name", opt.Name),
		zap.Int("initial-guards", opt.InitialGuards),
		zap.Int64("liberate-threshold", gc.threshold),
		zap.Stringer("liveset", opt.Liveset))
	return gc, nil
}

func (gc *GarbageCollector) Name() string {
	return gc.opt.Name
}

// Attach hands the caller a thread with Options.InitialGuards guards cached.
func (gc *GarbageCollector) Attach() (*ThreadGC, error) {
	gc.mu.Lock()
	if gc.closed {
		gc.mu.Unlock()
		return nil, smr.ErrClosed
	}
	gc.attached++
	gc.mu.Unlock()

	t := &ThreadGC{gc: gc, owner: gid.Current()}
	t.owned = gc.pool.take(t.owned, gc.opt.InitialGuards)
	t.cache = append(make([]*Guard, 0, len(t.owned)), t.owned...)
	gc.metrics.Attached.Inc()
	log.Debug("PTB thread attached", zap.String("name", gc.opt.Name), zap.Int64("goroutine", t.owner))
	return t, nil
}

func (gc *GarbageCollector) AttachThread() (smr.Thread, error) {
	t, err := gc.Attach()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (gc *GarbageCollector) release(t *ThreadGC) {
	gc.pool.giveBack(t.owned)
	n := len(t.owned)
	t.owned, t.cache = nil, nil
	gc.liberate()

	gc.mu.Lock()
	gc.attached--
	gc.mu.Unlock()
	gc.metrics.Attached.Dec()
	log.Debug("PTB thread detached", zap.String("name", gc.opt.Name), zap.Int64("goroutine", t.owner), zap.Int("guards", n))
}

func (gc *GarbageCollector) retire(r smr.Retired) {
	gc.retired.Inc()
	gc.metrics.Retired.Inc()
	if gc.buffer.push(&retiredNode{r: r}) >= gc.threshold {
		gc.liberate()
	}
}

// liberate disposes every buffered retirement no pooled guard publishes. It returns false without doing anything if another liberate is running.
func (gc *GarbageCollector) liberate() bool {
	if gc.liberating.Load() || !gc.liberating.CompareAndSwap(false, true) {
		return false
	}
	gc.liberates.Add(1)
	gc.metrics.Scans.Inc()

	head, _ := gc.buffer.takeAll()
	if head != nil {
		live := gc.live
		live.Reset()
		gc.pool.forEachHazard(live.Add)
		live.Seal()

		var keptFirst, keptLast *retiredNode
		var kept int64
		var freed []smr.Retired
		for p := head; p != nil; {
			next := p.next
			if live.Has(p.r.Addr) {
				p.next = keptFirst
				if keptFirst == nil {
					keptLast = p
				}
				keptFirst = p
				kept++
			} else {
				freed = append(freed, p.r)
			}
			p = next
		}
		if kept > 0 {
			gc.buffer.pushChain(keptFirst, keptLast, kept)
			gc.deferred.Add(uint64(kept))
			gc.metrics.Deferred.Add(float64(kept))
		}
		gc.dispose(freed)
	}
	gc.liberating.Store(false)
	return true
}

func (gc *GarbageCollector) dispose(rs []smr.Retired) {
	if len(rs) == 0 {
		return
	}
	gc.disposed.Add(uint64(len(rs)))
	if failed := smr.Dispose(rs, gc.metrics); failed > 0 {
		gc.disposeFailures.Add(uint64(failed))
	}
}

// Close disposes everything left in the buffer. It fails with smr.ErrThreadsAttached while any thread is attached.
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
	gc.mu.Unlock()

	head, n := gc.buffer.takeAll()
	left := make([]smr.Retired, 0, n)
	for p := head; p != nil; p = p.next {
		left = append(left, p.r)
	}
	gc.dispose(left)
	gc.metrics.Delete()
	log.Info("PTB garbage collector closed", zap.String("name", gc.opt.Name), zap.Int("disposed", len(left)))
	return nil
}

type Statistics struct {
	GuardsAllocated uint64
	Attached        int
	Buffered        int64
	Retired         uint64
	Disposed        uint64
	Deferred        uint64
	Liberates       uint64
	DisposeFailures uint64
}

func (gc *GarbageCollector) Statistics() Statistics {
	gc.mu.Lock()
	attached := gc.attached
	gc.mu.Unlock()
	return Statistics{
		GuardsAllocated: gc.pool.made.Load(),
		Attached:        attached,
		Buffered:        gc.buffer.len(),
		Retired:         uint64(gc.retired.Value()),
		Disposed:        gc.disposed.Load(),
		Deferred:        gc.deferred.Load(),
		Liberates:       gc.liberates.Load(),
		DisposeFailures: gc.disposeFailures.Load(),
	}
}
