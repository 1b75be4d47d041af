// Package sync provides synchronization primitives used across logbook.
package sync

import (
	"sync"
	"sync/atomic"
	"time"
)

// ResettableOnce is like sync.Once but can be re-armed, either explicitly
// with Reset or once the last run is older than a given age with ResetAfter.
//
// It guards "log this failure once per outage" style actions:
//
//	var warned ResettableOnce
//
//	warned.Do(func() { log.Warn("provider unavailable") }) // logs
//	warned.Do(func() { log.Warn("provider unavailable") }) // no-op
//	warned.ResetAfter(ttl, time.Now())                     // re-armed once ttl elapsed
//
// ResettableOnce is safe for concurrent use.
type ResettableOnce struct {
	done   atomic.Bool
	m      sync.Mutex
	doneAt time.Time
	now    func() time.Time
}

// Do calls f if Do has not completed since the last reset.
// Concurrent callers block until f returns, then return without calling f.
func (o *ResettableOnce) Do(f func()) {
	if o.done.Load() {
		return
	}

	o.m.Lock()
	defer o.m.Unlock()

	if !o.done.Load() {
		f()
		o.doneAt = o.clock()
		o.done.Store(true)
	}
}

// DoWithError is like Do, but an error from f leaves the once un-done so
// the next call retries.
func (o *ResettableOnce) DoWithError(f func() error) error {
	if o.done.Load() {
		return nil
	}

	o.m.Lock()
	defer o.m.Unlock()

	if !o.done.Load() {
		if err := f(); err != nil {
			return err
		}
		o.doneAt = o.clock()
		o.done.Store(true)
	}

	return nil
}

// Reset re-arms the once. It waits for a Do in progress.
func (o *ResettableOnce) Reset() {
	o.m.Lock()
	defer o.m.Unlock()
	o.done.Store(false)
}

// ResetAfter re-arms the once if its last run completed at least age
// before now. It reports whether it re-armed.
func (o *ResettableOnce) ResetAfter(age time.Duration, now time.Time) bool {
	if !o.done.Load() {
		return false
	}

	o.m.Lock()
	defer o.m.Unlock()

	if o.done.Load() && now.Sub(o.doneAt) >= age {
		o.done.Store(false)
		return true
	}
	return false
}

// Done reports whether Do has completed since the last reset.
func (o *ResettableOnce) Done() bool {
	return o.done.Load()
}

// SetClock replaces the clock used to stamp completed runs. For tests.
func (o *ResettableOnce) SetClock(now func() time.Time) {
	o.m.Lock()
	o.now = now
	o.m.Unlock()
}

func (o *ResettableOnce) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}
