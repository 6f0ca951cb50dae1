package smr

import (
	"unsafe"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Retired is one logical retirement: the address scans compare against guards, and the disposer that owns the node from now on.
type Retired struct {
	Addr uintptr
	free func() error
}

// NewRetired binds p to dispose.
func NewRetired[T any](p *T, dispose func(*T)) Retired {
	return Retired{Addr: uintptr(unsafe.Pointer(p)), free: func() error {
		dispose(p)
		return nil
	}}
}

// NewRetiredFunc binds p to a disposer that can fail.
func NewRetiredFunc[T any](p *T, dispose func(*T) error) Retired {
	return Retired{Addr: uintptr(unsafe.Pointer(p)), free: func() error {
		return dispose(p)
	}}
}

// Free runs the disposer. A panicking disposer is reported as an error.
func (r *Retired) Free() (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.Errorf("disposer panicked: %v", v)
		}
	}()
	if r.free == nil {
		return nil
	}
	return r.free()
}

// Dispose frees every entry of rs, isolating failures: a failed disposer is logged and the rest still run. It returns the number of failures.
func Dispose(rs []Retired, m *MetricsSet) (failed int) {
	for i := range rs {
		if err := rs[i].Free(); err != nil {
			failed++
			log.Warn("disposer failed", zap.String("domain", m.name), zap.Uintptr("addr", rs[i].Addr), zap.Error(err))
		}
		rs[i] = Retired{}
	}
	m.Disposed.Add(float64(len(rs)))
	if failed > 0 {
		m.DisposeFailures.Add(float64(failed))
	}
	return
}
