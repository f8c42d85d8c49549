package timex

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time.Now and deferred execution. Lockout windows and the
// idle-session timer consult a Clock instead of the time package directly,
// so tests can advance time deterministically.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run after d and returns a handle that can
	// cancel the pending call. Re-arming a timer must go through a new
	// AfterFunc call after stopping the previous handle.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable deferred call.
type Timer interface {
	// Stop cancels the pending call. It reports whether the call was still
	// pending.
	Stop() bool
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Fake is a manually advanced clock for tests. Scheduled functions fire
// synchronously from Advance once the clock passes their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

// NewFake returns a Fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn}
	f.pending = append(f.pending, t)
	return t
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range f.pending {
		if t.stopped {
			continue
		}
		if !t.deadline.After(f.now) {
			t.fired = true
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	f.pending = rest
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
