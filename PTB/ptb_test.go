package PTB

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poison = -1

type cell struct {
	v     int
	freed atomic.Int32
}

func testOptions(t *testing.T) smr.Options {
	opt := smr.DefaultOptions()
	opt.Name = t.Name()
	opt.InitialGuards = 2
	opt.ScanThreshold = 64
	return opt
}

func newGC(t *testing.T, opt smr.Options) *GarbageCollector {
	gc, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, gc.Close()) })
	return gc
}

func attach(t *testing.T, gc *GarbageCollector) *ThreadGC {
	th, err := gc.Attach()
	require.NoError(t, err)
	return th
}

func countingDisposer(n *atomic.Int64) func(*cell) {
	return func(c *cell) {
		if c.freed.Add(1) != 1 {
			panic("disposed twice")
		}
		n.Add(1)
	}
}

func TestThreadGC_GuardsGrow(t *testing.T) {
	gc := newGC(t, testOptions(t))
	th := attach(t, gc)
	defer th.Detach()

	require.Equal(t, 2, th.Borrowed())
	gs := make([]*Guard, 5)
	for i := range gs {
		gs[i] = th.AllocGuard()
	}
	require.Equal(t, 5, th.Borrowed())
	for _, g := range gs {
		g.Release()
	}
	require.Panics(t, gs[0].Release)
	g := th.AllocGuard()
	require.Equal(t, 5, th.Borrowed())
	g.Release()
}

func TestGarbageCollector_GuardsPooled(t *testing.T) {
	gc := newGC(t, testOptions(t))
	for range 3 {
		th := attach(t, gc)
		th.AllocGuard()
		th.AllocGuard()
		th.AllocGuard()
		require.NoError(t, th.Detach())
	}
	require.EqualValues(t, 3, gc.Statistics().GuardsAllocated)
}

func TestThreadGC_GuardedSurviveLiberate(t *testing.T) {
	for _, kind := range []smr.LivesetKind{smr.LivesetSorted, smr.LivesetBTree, smr.LivesetLLRB, smr.LivesetHashSet, smr.LivesetHashMap} {
		t.Run(kind.String(), func(t *testing.T) {
			opt := testOptions(t)
			opt.Liveset = kind
			gc := newGC(t, opt)
			retirer := attach(t, gc)
			reader := attach(t, gc)

			cells := make([]cell, 50)
			g := reader.AllocGuard()
			g.Publish(unsafe.Pointer(&cells[7]))

			var n atomic.Int64
			for i := range cells {
				smr.Retire(retirer, &cells[i], countingDisposer(&n))
			}
			retirer.Scan()
			require.EqualValues(t, 49, n.Load())
			require.Zero(t, cells[7].freed.Load())
			require.EqualValues(t, 1, gc.Statistics().Buffered)

			g.Release()
			require.NoError(t, reader.Detach())
			require.EqualValues(t, 50, n.Load())
			require.NoError(t, retirer.Detach())
		})
	}
}

func TestThreadGC_AutomaticLiberate(t *testing.T) {
	gc := newGC(t, testOptions(t))
	th := attach(t, gc)
	defer th.Detach()

	var n atomic.Int64
	for range 63 {
		smr.Retire(th, new(cell), countingDisposer(&n))
	}
	require.Zero(t, n.Load())
	smr.Retire(th, new(cell), countingDisposer(&n))
	require.EqualValues(t, 64, n.Load())
	require.Zero(t, gc.Statistics().Buffered)
}

func TestThreadGC_ReentrantRetire(t *testing.T) {
	gc := newGC(t, testOptions(t))
	th := attach(t, gc)

	var n atomic.Int64
	smr.Retire(th, new(cell), func(*cell) {
		smr.Retire(th, new(cell), countingDisposer(&n))
	})
	th.Scan()
	require.Zero(t, n.Load())
	require.EqualValues(t, 1, gc.Statistics().Buffered)
	th.Scan()
	require.EqualValues(t, 1, n.Load())
	require.NoError(t, th.Detach())
}

// The liberate run by Detach calls disposers on the detaching thread; what they retire stays buffered until Close.
func TestThreadGC_RetireWhileDetaching(t *testing.T) {
	gc, err := New(testOptions(t))
	require.NoError(t, err)
	th := attach(t, gc)

	var outer, inner atomic.Int64
	smr.Retire(th, new(cell), func(c *cell) {
		countingDisposer(&outer)(c)
		smr.Retire(th, new(cell), countingDisposer(&inner))
		assert.Equal(t, smr.ErrNotAttached, th.Detach())
		assert.PanicsWithValue(t, smr.ErrDetached, func() { th.AllocGuard() })
	})
	require.NoError(t, th.Detach())
	require.EqualValues(t, 1, outer.Load())
	require.Zero(t, inner.Load())
	require.EqualValues(t, 1, gc.Statistics().Buffered)
	require.PanicsWithValue(t, smr.ErrDetached, func() { smr.Retire(th, new(cell), countingDisposer(&inner)) })

	require.NoError(t, gc.Close())
	require.EqualValues(t, 1, inner.Load())
	s := gc.Statistics()
	require.Zero(t, s.DisposeFailures)
	require.Equal(t, s.Retired, s.Disposed)
	require.False(t, smr.NumRetired.DeleteLabelValues(scheme, gc.Name()))
}

func TestGarbageCollector_Lifecycle(t *testing.T) {
	gc, err := New(testOptions(t))
	require.NoError(t, err)
	th := attach(t, gc)
	require.Equal(t, smr.ErrThreadsAttached, errors.Cause(gc.Close()))

	var n atomic.Int64
	g := th.AllocGuard()
	c := new(cell)
	g.Publish(unsafe.Pointer(c))
	smr.Retire(th, c, countingDisposer(&n))
	th.Scan()
	require.Zero(t, n.Load())

	// detach clears the guard and liberates
	require.NoError(t, th.Detach())
	require.EqualValues(t, 1, n.Load())
	require.Equal(t, smr.ErrNotAttached, th.Detach())
	require.PanicsWithValue(t, smr.ErrDetached, func() { th.Scan() })

	require.NoError(t, gc.Close())
	_, err = gc.Attach()
	require.Equal(t, smr.ErrClosed, err)
}

func TestGarbageCollector_CloseDisposesBuffered(t *testing.T) {
	gc, err := New(testOptions(t))
	require.NoError(t, err)
	th := attach(t, gc)

	var n atomic.Int64
	gc.liberating.Store(true) // hold off liberate so retirements stay buffered
	for range 10 {
		smr.Retire(th, new(cell), countingDisposer(&n))
	}
	require.NoError(t, th.Detach())
	require.Zero(t, n.Load())
	gc.liberating.Store(false)

	require.NoError(t, gc.Close())
	require.EqualValues(t, 10, n.Load())
	require.EqualValues(t, 10, gc.Statistics().Disposed)
}

func TestThreadGC_StressNoUseAfterDispose(t *testing.T) {
	opt := testOptions(t)
	opt.ScanThreshold = 32
	gc := newGC(t, opt)
	var src atomic.Pointer[cell]
	src.Store(&cell{v: 0})

	const readers, writers, writes = 4, 2, 10000
	var stop atomic.Bool
	var bad atomic.Int64
	rg := sync.WaitGroup{}
	rg.Add(readers)
	for range readers {
		go func() {
			defer rg.Done()
			th, err := gc.Attach()
			if err != nil {
				bad.Add(1)
				return
			}
			defer th.Detach()
			g := th.AllocGuard()
			for !stop.Load() {
				if c := smr.Protect[cell](g, &src); c.v == poison {
					bad.Add(1)
				}
				g.Clear()
			}
			g.Release()
		}()
	}

	wg := sync.WaitGroup{}
	wg.Add(writers)
	for range writers {
		go func() {
			defer wg.Done()
			th, err := gc.Attach()
			if err != nil {
				bad.Add(1)
				return
			}
			defer th.Detach()
			for i := 1; i <= writes; i++ {
				old := src.Swap(&cell{v: i})
				smr.Retire(th, old, func(c *cell) { c.v = poison })
			}
		}()
	}
	wg.Wait()
	stop.Store(true)
	rg.Wait()
	require.Zero(t, bad.Load())

	w := attach(t, gc)
	w.Scan()
	require.NoError(t, w.Detach())
	s := gc.Statistics()
	require.EqualValues(t, writers*writes, s.Retired)
	require.EqualValues(t, writers*writes, s.Disposed)
}
