package testing

import (
	"sync"
	"time"
)

// FakeClock is a manual clock for rate limiter tests.
//
// After never blocks: it advances the clock by d, records d, and returns an already fired channel.
type FakeClock struct {
	mu     sync.Mutex
	start  time.Time
	now    time.Time
	sleeps []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{start: start, now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)

	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the clock forward without recording a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Elapsed returns the total time the clock moved through After calls and Advance.
func (c *FakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Sleeps returns every duration passed to After, in call order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// FakeTimer satisfies the backoff Timer interface. Every Start fires immediately and records its duration.
type FakeTimer struct {
	mu        sync.Mutex
	durations []time.Duration
	c         chan time.Time
}

func NewFakeTimer() *FakeTimer {
	return &FakeTimer{c: make(chan time.Time, 1)}
}

func (t *FakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.durations = append(t.durations, d)
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *FakeTimer) Stop() {}

func (t *FakeTimer) C() <-chan time.Time {
	return t.c
}

// Durations returns the requested sleeps in order.
func (t *FakeTimer) Durations() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.durations...)
}

// Total returns the sum of requested sleeps.
func (t *FakeTimer) Total() time.Duration {
	var total time.Duration
	for _, d := range t.Durations() {
		total += d
	}
	return total
}
