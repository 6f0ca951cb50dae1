/*
Package threading binds reclamation threads to goroutines, so code deep inside a container can find the calling goroutine's thread of each domain without passing handles around.

A Manager serves a fixed set of domains. Attach binds the calling goroutine to one thread per domain; Current does the same on first use and keeps the binding until Detach. A goroutine that exits without Detach leaks its threads: HP records stay busy and their retirements are never adopted.
*/
package threading

import (
	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/internal/gid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// ThreadData is a goroutine's set of threads, one per domain of its Manager.
type ThreadData struct {
	id      int64
	domains []smr.Domain
	threads []smr.Thread
}

// Thread returns the thread attached to d, or nil if d isn't one of the manager's domains.
func (td *ThreadData) Thread(d smr.Domain) smr.Thread {
	for i, x := range td.domains {
		if x == d {
			return td.threads[i]
		}
	}
	return nil
}

// Goroutine is the id of the goroutine td is bound to.
func (td *ThreadData) Goroutine() int64 {
	return td.id
}

type Manager struct {
	domains []smr.Domain
	index   *gid.Index[*ThreadData]
}

func New(domains ...smr.Domain) *Manager {
	return &Manager{domains: domains, index: gid.NewIndex[*ThreadData](0)}
}

// Attach binds the calling goroutine. Attaching an attached goroutine returns its existing binding.
func (m *Manager) Attach() (*ThreadData, error) {
	if td, ok := m.index.Get(); ok {
		return td, nil
	}
	td := &ThreadData{id: gid.Current(), domains: m.domains, threads: make([]smr.Thread, 0, len(m.domains))}
	for _, d := range m.domains {
		t, err := d.AttachThread()
		if err != nil {
			for i := len(td.threads) - 1; i >= 0; i-- {
				_ = td.threads[i].Detach()
			}
			return nil, errors.Annotatef(err, "attach goroutine %d to %s", td.id, d.Name())
		}
		td.threads = append(td.threads, t)
	}
	m.index.Set(td)
	return td, nil
}

// Current returns the calling goroutine's binding, attaching it first if needed. The binding persists until Detach.
func (m *Manager) Current() (*ThreadData, error) {
	if td, ok := m.index.Get(); ok {
		return td, nil
	}
	td, err := m.Attach()
	if err == nil {
		log.Debug("goroutine attached on first use", zap.Int64("goroutine", td.id))
	}
	return td, err
}

// MustCurrent is Current for callers that can't handle an error.
func (m *Manager) MustCurrent() *ThreadData {
	td, err := m.Current()
	if err != nil {
		panic(err)
	}
	return td
}

func (m *Manager) IsAttached() bool {
	_, ok := m.index.Get()
	return ok
}

// Detach detaches every thread of the calling goroutine. It fails with smr.ErrNotAttached if the goroutine isn't bound.
func (m *Manager) Detach() error {
	td, ok := m.index.Get()
	if !ok {
		return smr.ErrNotAttached
	}
	m.index.Delete()
	var first error
	for i := len(td.threads) - 1; i >= 0; i-- {
		if err := td.threads[i].Detach(); err != nil && first == nil {
			first = errors.Annotatef(err, "detach goroutine %d from %s", td.id, td.domains[i].Name())
		}
	}
	return first
}

// Attached is the number of bound goroutines.
func (m *Manager) Attached() int {
	return m.index.Len()
}
