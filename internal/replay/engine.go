package replay

import (
	"context"
	"log"
	"sync"
	"time"

	"ride-replay/internal/dataset"
	"ride-replay/internal/timeline"
)

// FrameSink receives every committed frame, in commit order.
type FrameSink interface {
	PublishFrame(f Frame) error
}

// Metrics receives engine observations. It may be nil.
type Metrics interface {
	TimeSet()
	ResolveObserve(d time.Duration)
	FrameCommitted(t float64)
	FrameStale()
}

// Engine turns accepted time changes into committed frames. A frame only
// replaces the committed one when it was resolved for a newer tick, so a
// slow resolution for an old time can never overwrite a newer frame.
type Engine struct {
	store   *dataset.Store
	ctrl    *timeline.Controller
	metrics Metrics
	sinks   []FrameSink

	mu       sync.Mutex
	latest   *Frame
	claimed  uint64 // highest tick seq taken by SetTime or the follow loop
	claimAny bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(store *dataset.Store, ctrl *timeline.Controller, metrics Metrics, sinks ...FrameSink) *Engine {
	return &Engine{store: store, ctrl: ctrl, metrics: metrics, sinks: sinks}
}

// Resolve computes the frame for tick without committing it.
func (e *Engine) Resolve(tick timeline.Tick) (Frame, error) {
	snap, err := e.store.Snapshot()
	if err != nil {
		return Frame{}, err
	}
	start := time.Now()
	min, max := e.ctrl.Bounds()
	f := Resolve(snap, tick, min, max)
	if e.metrics != nil {
		e.metrics.ResolveObserve(time.Since(start))
	}
	return f, nil
}

// SetTime moves the timeline and returns the frame resolved for it.
func (e *Engine) SetTime(t float64) (Frame, error) {
	// Claiming under mu before the follow loop can see the tick keeps the
	// loop from resolving it a second time.
	e.mu.Lock()
	tick := e.ctrl.SetTime(t)
	e.claimLocked(tick.Seq)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.TimeSet()
	}
	f, err := e.Resolve(tick)
	if err != nil {
		return Frame{}, err
	}
	e.commit(f)
	return f, nil
}

// Refresh resolves and commits the current tick. Call it once the store
// becomes ready so consumers get a first frame.
func (e *Engine) Refresh() (Frame, error) {
	f, err := e.Resolve(e.ctrl.Current())
	if err != nil {
		return Frame{}, err
	}
	e.commit(f)
	return f, nil
}

// Latest returns the committed frame, resolving the current tick when
// nothing has been committed yet.
func (e *Engine) Latest() (Frame, error) {
	e.mu.Lock()
	latest := e.latest
	e.mu.Unlock()
	if latest != nil {
		return *latest, nil
	}
	return e.Refresh()
}

// claim reports whether seq has not been taken yet, and takes it.
func (e *Engine) claim(seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimLocked(seq)
}

func (e *Engine) claimLocked(seq uint64) bool {
	if e.claimAny && seq <= e.claimed {
		return false
	}
	e.claimed, e.claimAny = seq, true
	return true
}

func (e *Engine) commit(f Frame) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest != nil && f.Seq <= e.latest.Seq {
		if f.Seq < e.latest.Seq {
			if e.metrics != nil {
				e.metrics.FrameStale()
			}
			log.Printf("dropping stale frame seq=%d (committed seq=%d)", f.Seq, e.latest.Seq)
		}
		return false
	}
	e.latest = &f
	if e.metrics != nil {
		e.metrics.FrameCommitted(f.Time)
	}
	for _, s := range e.sinks {
		if err := s.PublishFrame(f); err != nil {
			log.Printf("frame sink error (seq=%d): %v", f.Seq, err)
		}
	}
	return true
}

// Start follows the controller in the background, so time changes made
// directly on the controller are resolved and committed too.
func (e *Engine) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	sub := e.ctrl.Subscribe()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-sub.C():
				if !ok {
					return
				}
				if !e.claim(tick.Seq) {
					continue
				}
				f, err := e.Resolve(tick)
				if err != nil {
					// not loaded yet; Refresh picks up the current tick later
					continue
				}
				e.commit(f)
			}
		}
	}()
}

func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}
