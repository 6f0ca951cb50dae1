package threading

import (
	"sync"
	"sync/atomic"
	"testing"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/HP"
	"github.com/g-m-twostay/go-smr/PTB"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domains(t *testing.T) (*HP.GarbageCollector, *PTB.GarbageCollector) {
	opt := smr.DefaultOptions()
	opt.Name = t.Name()
	hp, err := HP.New(opt)
	require.NoError(t, err)
	ptb, err := PTB.New(opt)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, hp.Close())
		require.NoError(t, ptb.Close())
	})
	return hp, ptb
}

func TestManager_AttachDetach(t *testing.T) {
	hp, ptb := domains(t)
	m := New(hp, ptb)
	require.False(t, m.IsAttached())
	require.Equal(t, smr.ErrNotAttached, m.Detach())

	td, err := m.Attach()
	require.NoError(t, err)
	require.True(t, m.IsAttached())
	require.IsType(t, &HP.ThreadGC{}, td.Thread(hp))
	require.IsType(t, &PTB.ThreadGC{}, td.Thread(ptb))

	again, err := m.Attach()
	require.NoError(t, err)
	require.Same(t, td, again)
	require.Equal(t, 1, hp.Statistics().Attached)

	require.NoError(t, m.Detach())
	require.False(t, m.IsAttached())
	require.Zero(t, hp.Statistics().Attached)
	require.Zero(t, m.Attached())
}

func TestManager_CurrentAutoAttaches(t *testing.T) {
	hp, _ := domains(t)
	m := New(hp)
	td := m.MustCurrent()
	require.Same(t, td, m.MustCurrent())

	var n atomic.Int64
	x := new(int)
	smr.Retire(td.Thread(hp), x, func(*int) { n.Add(1) })
	require.NoError(t, m.Detach())
	require.EqualValues(t, 1, n.Load())
}

func TestManager_PerGoroutine(t *testing.T) {
	hp, ptb := domains(t)
	m := New(hp, ptb)
	const workers = 8
	start, done := sync.WaitGroup{}, sync.WaitGroup{}
	start.Add(workers)
	done.Add(workers)
	ids := make([]int64, workers)
	for i := range workers {
		go func() {
			defer done.Done()
			td := m.MustCurrent()
			ids[i] = td.Goroutine()
			start.Done()
			start.Wait()
			assert.NoError(t, m.Detach())
		}()
	}
	done.Wait()
	seen := map[int64]bool{}
	for _, id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Zero(t, m.Attached())
	require.Zero(t, hp.Statistics().Attached)
}

func TestManager_AttachFailureRollsBack(t *testing.T) {
	hp, ptb := domains(t)
	require.NoError(t, ptb.Close())
	m := New(hp, ptb)
	_, err := m.Attach()
	require.Equal(t, smr.ErrClosed, errors.Cause(err))
	require.False(t, m.IsAttached())
	require.Zero(t, hp.Statistics().Attached)
}
