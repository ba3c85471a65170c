package dispatch

import "sync"

// tracker counts outstanding deliveries: queued, in flight or waiting for a
// retry timer. idle is closed whenever the count is zero.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func newTracker() *tracker {
	t := &tracker{idle: make(chan struct{})}
	close(t.idle)
	return t
}

func (t *tracker) add(delta int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.n == 0 && delta > 0 {
		t.idle = make(chan struct{})
	}
	t.n += delta
	if t.n < 0 {
		t.n = 0
	}
	if t.n == 0 && delta < 0 {
		close(t.idle)
	}
	return t.n
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

func (t *tracker) wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}
