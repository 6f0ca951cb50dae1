package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	smr "github.com/g-m-twostay/go-smr"
	"github.com/g-m-twostay/go-smr/HP"
	"github.com/g-m-twostay/go-smr/PTB"
	"github.com/g-m-twostay/go-smr/Queues"
	"github.com/g-m-twostay/go-smr/Sets"
	"github.com/g-m-twostay/go-smr/threading"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

var (
	errPoisoned     = errors.New("read a disposed node")
	errInconsistent = errors.New("set disagrees with the worker owning the key")
)

// poisonKey is what disposed set nodes read as. Live keys are in [1, Workers*Keys].
const poisonKey = math.MaxInt

type harnessConfig struct {
	Scheme    string
	Container string
	Workers   int
	Ops       int
	Keys      int
	Options   smr.Options
}

type harness struct {
	cfg     harnessConfig
	domain  smr.Domain
	threads *threading.Manager
	stats   func() any
	set     *Sets.ListSet[int]
	work    func(w int, th smr.Thread, rng *rand.Rand) error
}

type result struct {
	Ops      int64
	Poisoned int64
	Elapsed  time.Duration
	Stats    any
}

func (r result) String() string {
	return fmt.Sprintf("ops: %d, poisoned reads: %d, elapsed: %s\n%+v", r.Ops, r.Poisoned, r.Elapsed, r.Stats)
}

// payload is what the queue carries. Each one is popped once, so popping nil or a taken payload means a node was read after disposal.
type payload struct {
	seq   int64
	taken atomic.Bool
}

func newHarness(cfg harnessConfig) (*harness, error) {
	if cfg.Workers < 1 || cfg.Ops < 1 {
		return nil, errors.Errorf("workers and ops must be positive, got %d and %d", cfg.Workers, cfg.Ops)
	}
	h := &harness{cfg: cfg}
	switch cfg.Scheme {
	case "hp":
		gc, err := HP.New(cfg.Options)
		if err != nil {
			return nil, err
		}
		h.domain, h.stats = gc, func() any { return gc.Statistics() }
	case "ptb":
		gc, err := PTB.New(cfg.Options)
		if err != nil {
			return nil, err
		}
		h.domain, h.stats = gc, func() any { return gc.Statistics() }
	default:
		return nil, errors.Errorf("unknown scheme %q", cfg.Scheme)
	}
	h.threads = threading.New(h.domain)

	switch cfg.Container {
	case "queue":
		h.work = h.queueWork(Queues.MakeMSQueue[*payload]())
	case "set":
		if cfg.Keys < 1 {
			return nil, errors.Errorf("keys must be positive, got %d", cfg.Keys)
		}
		h.set = Sets.NewListSet[int]().Poison(poisonKey)
		h.work = h.setWork(h.set)
	default:
		return nil, errors.Errorf("unknown container %q", cfg.Container)
	}
	return h, nil
}

// Run starts the workers, waits for them and closes the domain. A poisoned read fails the run.
func (h *harness) Run(ctx context.Context) (result, error) {
	log.Info("stress started",
		zap.String("scheme", h.cfg.Scheme),
		zap.String("container", h.cfg.Container),
		zap.Int("workers", h.cfg.Workers),
		zap.Int("ops", h.cfg.Ops))
	start := time.Now()
	var ops, poisoned atomic.Int64
	errs := make(chan error, h.cfg.Workers)
	wg := sync.WaitGroup{}
	wg.Add(h.cfg.Workers)
	for w := range h.cfg.Workers {
		go func() {
			defer wg.Done()
			td, err := h.threads.Current()
			if err != nil {
				errs <- err
				return
			}
			defer h.threads.Detach()
			rng := rand.New(rand.NewSource(int64(w)))
			th := td.Thread(h.domain)
			for i := 0; i < h.cfg.Ops; i++ {
				if ctx.Err() != nil {
					return
				}
				if err := h.work(w, th, rng); err != nil {
					if errors.Cause(err) == errPoisoned {
						poisoned.Add(1)
						continue
					}
					errs <- err
					return
				}
				ops.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	var err error
	for e := range errs {
		if err == nil {
			err = e
		}
	}
	if cerr := h.domain.Close(); err == nil {
		err = cerr
	}
	res := result{Ops: ops.Load(), Poisoned: poisoned.Load(), Elapsed: time.Since(start), Stats: h.stats()}
	if err == nil && res.Poisoned > 0 {
		err = errors.Annotatef(errPoisoned, "%d times", res.Poisoned)
	}
	log.Info("stress finished", zap.Int64("ops", res.Ops), zap.Int64("poisoned", res.Poisoned), zap.Duration("elapsed", res.Elapsed))
	return res, err
}

func (h *harness) queueWork(q *Queues.MSQueue[*payload]) func(int, smr.Thread, *rand.Rand) error {
	var seq atomic.Int64
	return func(_ int, th smr.Thread, rng *rand.Rand) error {
		if rng.Intn(2) == 0 {
			return q.Push(th, &payload{seq: seq.Add(1)})
		}
		p, err := q.Pop(th)
		if _, empty := err.(*Queues.EmptyQueueError); empty {
			return nil
		}
		if err != nil {
			return err
		}
		// the queue's disposer clears values, so nil is what a disposed node reads as
		if p == nil || p.taken.Swap(true) {
			return errPoisoned
		}
		return nil
	}
}

// setWork gives worker w the keys j*Workers+w+1 for j < Keys, and a model of which of them are present. Nobody else touches them, so every Put, Remove and Has must agree with the model. Range checks order and looks for poisonKey.
func (h *harness) setWork(s *Sets.ListSet[int]) func(int, smr.Thread, *rand.Rand) error {
	present := make([][]bool, h.cfg.Workers)
	for w := range present {
		present[w] = make([]bool, h.cfg.Keys)
	}
	return func(w int, th smr.Thread, rng *rand.Rand) error {
		j := rng.Intn(h.cfg.Keys)
		k, had := j*h.cfg.Workers+w+1, present[w][j]
		var ok bool
		var err error
		switch op := rng.Intn(16); {
		case op < 5:
			if ok, err = s.Put(th, k); err == nil && ok == had {
				return errors.Annotatef(errInconsistent, "put %d returned %t", k, ok)
			}
			present[w][j] = present[w][j] || ok
		case op < 10:
			if ok, err = s.Remove(th, k); err == nil && ok != had {
				return errors.Annotatef(errInconsistent, "remove %d returned %t", k, ok)
			}
			present[w][j] = present[w][j] && !ok
		case op < 15:
			if ok, err = s.Has(th, k); err == nil && ok != had {
				return errors.Annotatef(errInconsistent, "has %d returned %t", k, ok)
			}
		default:
			prev, poisoned := 0, false
			err = s.Range(th, func(key int) bool {
				if key == poisonKey || key <= prev {
					poisoned = true
					return false
				}
				prev = key
				return true
			})
			if err == nil && poisoned {
				err = errPoisoned
			}
		}
		return err
	}
}
