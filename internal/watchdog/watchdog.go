// Package watchdog fires a callback for every person whose deadline passes
// without being re-armed.
package watchdog

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when arming a stopped watchdog
var ErrStopped = errors.New("watchdog is stopped")

// deadline is one person's expiry
type deadline struct {
	personID string
	expiryAt time.Time
	index    int // index in the heap (for heap.Interface)
}

// deadlineHeap is a min-heap of deadlines ordered by expiryAt
type deadlineHeap []*deadline

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].expiryAt.Before(h[j].expiryAt)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x interface{}) {
	d := x.(*deadline)
	d.index = len(*h)
	*h = append(*h, d)
}

func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*h = old[0 : n-1]
	return d
}

// Watchdog tracks one deadline per person
type Watchdog struct {
	heap     deadlineHeap
	mu       sync.Mutex
	wakeup   chan struct{}
	byPerson map[string]*deadline
	onExpire func(personID string)
	started  bool
	stopped  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a watchdog. onExpire runs on the watchdog goroutine, one
// person at a time.
func New(onExpire func(personID string)) *Watchdog {
	w := &Watchdog{
		heap:     make(deadlineHeap, 0),
		wakeup:   make(chan struct{}, 1),
		byPerson: make(map[string]*deadline),
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	heap.Init(&w.heap)
	return w
}

// Start starts the scheduler goroutine
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
}

// Stop stops the scheduler and waits for a running callback to return
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopCh)
	started := w.started
	w.mu.Unlock()

	if started {
		<-w.done
	}
}

// Arm sets the person's deadline, replacing any earlier one
func (w *Watchdog) Arm(personID string, expiryAt time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}

	if d, ok := w.byPerson[personID]; ok {
		d.expiryAt = expiryAt
		heap.Fix(&w.heap, d.index)
	} else {
		d = &deadline{personID: personID, expiryAt: expiryAt}
		heap.Push(&w.heap, d)
		w.byPerson[personID] = d
	}

	select {
	case w.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of armed deadlines
func (w *Watchdog) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byPerson)
}

func (w *Watchdog) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}

		waitDuration := 24 * time.Hour
		if w.heap.Len() > 0 {
			waitDuration = time.Until(w.heap[0].expiryAt)
			if waitDuration <= 0 {
				d := heap.Pop(&w.heap).(*deadline)
				delete(w.byPerson, d.personID)
				w.mu.Unlock()

				w.onExpire(d.personID)
				continue
			}
		}
		w.mu.Unlock()

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-w.wakeup:
			timer.Stop()
		case <-w.stopCh:
			timer.Stop()
			return
		}
	}
}
