package poller

import (
	"sort"
	"sync"
	"time"
)

// Handle cancels a recurring job. Stop is safe to call more than once.
type Handle interface {
	Stop()
}

// Scheduler runs fn every d until the returned handle is stopped.
type Scheduler interface {
	Every(d time.Duration, fn func()) Handle
}

// TickerScheduler is the wall-clock Scheduler. Each job runs on its own
// goroutine; a slow fn delays that job's next run instead of overlapping it.
type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) Handle {
	h := &tickerHandle{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-h.done:
				return
			case <-h.ticker.C:
				// Stop may have raced with this tick
				select {
				case <-h.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

type tickerHandle struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (h *tickerHandle) Stop() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}

// FakeScheduler fires jobs only when Tick is called.
type FakeScheduler struct {
	mu   sync.Mutex
	jobs map[int]*fakeJob
	next int
}

type fakeJob struct {
	every time.Duration
	fn    func()
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{jobs: map[int]*fakeJob{}}
}

func (f *FakeScheduler) Every(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.jobs[id] = &fakeJob{every: d, fn: fn}
	return fakeHandle{s: f, id: id}
}

// Tick runs every live job once, in registration order, on the caller's goroutine.
func (f *FakeScheduler) Tick() {
	f.mu.Lock()
	ids := make([]int, 0, len(f.jobs))
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.jobs[id].fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Active is the number of jobs not yet stopped.
func (f *FakeScheduler) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// Intervals lists the periods of the live jobs.
func (f *FakeScheduler) Intervals() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j.every)
	}
	return out
}

type fakeHandle struct {
	s  *FakeScheduler
	id int
}

func (h fakeHandle) Stop() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	delete(h.s.jobs, h.id)
}
