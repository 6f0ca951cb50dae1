package Sets

import (
	"math"
	"sync"
	"testing"
	"unsafe"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/HP"
	"github.com/g-m-twostay/go-smr/PTB"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemes(t *testing.T) map[string]smr.Domain {
	opt := smr.DefaultOptions()
	opt.Name = t.Name()
	opt.ScanThreshold = 32
	hp, err := HP.New(opt)
	require.NoError(t, err)
	ptb, err := PTB.New(opt)
	require.NoError(t, err)
	return map[string]smr.Domain{"hp": hp, "ptb": ptb}
}

// must unwraps a set result, failing the test on error. must(t)(S.Put(th, k)) reads as the bool alone.
func must(t require.TestingT) func(bool, error) bool {
	return func(ok bool, err error) bool {
		require.NoError(t, err)
		return ok
	}
}

// check is must for goroutines other than the test's: it reports the error and carries on with false.
func check(t assert.TestingT) func(bool, error) bool {
	return func(ok bool, err error) bool {
		return assert.NoError(t, err) && ok
	}
}

func TestListSet_All(t *testing.T) {
	for name, d := range schemes(t) {
		t.Run(name, func(t *testing.T) {
			th, err := d.AttachThread()
			require.NoError(t, err)
			S := NewListSet[int]()
			var _ Set[int] = S
			for i := 9; i >= 0; i-- {
				require.True(t, must(t)(S.Put(th, i)), "wrong put 1")
				require.False(t, must(t)(S.Put(th, i)), "wrong put 2")
			}
			for i := 0; i < 10; i++ {
				require.True(t, must(t)(S.Has(th, i)), "wrong has 1")
			}
			for i := 0; i < 5; i++ {
				require.True(t, must(t)(S.Remove(th, i)), "wrong remove 1")
				require.False(t, must(t)(S.Remove(th, i)), "wrong remove 2")
			}
			for i := 0; i < 5; i++ {
				require.False(t, must(t)(S.Has(th, i)), "wrong has 2")
			}
			require.EqualValues(t, 5, S.Size())

			var keys []int
			require.NoError(t, S.Range(th, func(k int) bool {
				keys = append(keys, k)
				return k < 7
			}))
			require.Equal(t, []int{5, 6, 7}, keys)

			require.NoError(t, th.Detach())
			require.NoError(t, d.Close())
		})
	}
}

func TestListSet_TooFewHazardPointers(t *testing.T) {
	opt := smr.DefaultOptions()
	opt.Name = t.Name()
	opt.HazardPointers = 1
	gc, err := HP.New(opt)
	require.NoError(t, err)
	th, err := gc.Attach()
	require.NoError(t, err)
	_, err = NewListSet[int]().Put(th, 1)
	require.ErrorIs(t, err, smr.ErrTooFewHazardPointers)
	require.NoError(t, th.Detach())
	require.NoError(t, gc.Close())
}

// Workers own disjoint key ranges and churn them concurrently; at the end each key's presence matches its owner's last operation.
func TestListSet_Concurrent(t *testing.T) {
	for name, d := range schemes(t) {
		t.Run(name, func(t *testing.T) {
			const workers, keys, rounds = 4, 64, 200
			S := NewListSet[int]()
			wg := sync.WaitGroup{}
			wg.Add(workers)
			for w := range workers {
				go func() {
					defer wg.Done()
					th, err := d.AttachThread()
					if !assert.NoError(t, err) {
						return
					}
					defer th.Detach()
					for r := 0; r < rounds; r++ {
						for k := w; k < keys; k += workers {
							if r%2 == 0 {
								assert.True(t, check(t)(S.Put(th, k)))
							} else {
								assert.True(t, check(t)(S.Remove(th, k)))
							}
						}
					}
					for k := w; k < keys; k += workers {
						if k%3 == 0 {
							assert.True(t, check(t)(S.Put(th, k)))
						}
					}
				}()
			}
			wg.Wait()

			th, err := d.AttachThread()
			require.NoError(t, err)
			var got []int
			require.NoError(t, S.Range(th, func(k int) bool {
				got = append(got, k)
				return true
			}))
			var want []int
			for k := 0; k < keys; k += 3 {
				want = append(want, k)
			}
			require.Equal(t, want, got)
			require.EqualValues(t, len(want), S.Size())
			require.NoError(t, th.Detach())
			require.NoError(t, d.Close())
		})
	}
}

// A disposed node reads as the poison key, which sorts after every live key, so a walk reaching it stops there.
func TestListSet_Poison(t *testing.T) {
	opt := smr.DefaultOptions()
	opt.Name = t.Name()
	gc, err := HP.New(opt)
	require.NoError(t, err)
	th, err := gc.Attach()
	require.NoError(t, err)

	S := NewListSet[int]().Poison(math.MaxInt)
	require.True(t, must(t)(S.Put(th, 1)))
	g, err := th.AllocGuard()
	require.NoError(t, err)
	n := S.head.Load().to
	g.Publish(unsafe.Pointer(n))
	require.True(t, must(t)(S.Remove(th, 1)))
	th.Scan()
	require.Equal(t, 1, n.key, "guarded node disposed")

	g.Release()
	th.Scan()
	require.Equal(t, math.MaxInt, n.key)
	require.Nil(t, n.next.Load())
	require.NoError(t, th.Detach())
	require.NoError(t, gc.Close())
}
