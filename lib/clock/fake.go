// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback may register new timers (a reconnect loop
// re-arming itself does exactly that); those fire within the same
// Advance if their deadline is already due.
type FakeClock struct {
	mutex   sync.Mutex
	now     time.Time
	pending []*pendingTimer
	changed *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	// Exactly one of channel and callback is set.
	channel  chan time.Time
	callback func()
	// period is non-zero for tickers, which are re-armed after firing.
	period    time.Duration
	cancelled bool
	done      bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mutex)
	return fake
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced
// by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&pendingTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f to run once the clock has advanced by d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mutex.Lock()
	timer := &pendingTimer{deadline: c.now.Add(d), callback: f}
	c.addLocked(timer)
	c.mutex.Unlock()

	return &Timer{stop: func() bool {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if timer.cancelled || timer.done {
			return false
		}
		timer.cancelled = true
		return true
	}}
}

// NewTicker returns a Ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker requires a positive period")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	channel := make(chan time.Time, 1)
	timer := &pendingTimer{deadline: c.now.Add(d), channel: channel, period: d}
	c.addLocked(timer)

	return &Ticker{C: channel, stop: func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		timer.cancelled = true
	}}
}

// Advance moves the clock forward by d and fires everything that
// became due, earliest deadline first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mutex.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			if timer.callback != nil {
				timer.callback()
				continue
			}
			select {
			case timer.channel <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers and tickers that have
// neither fired nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) addLocked(timer *pendingTimer) {
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.cancelled {
			count++
		}
	}
	return count
}

// takeDue removes due timers from the pending list (re-arming
// tickers) and returns them sorted by deadline.
func (c *FakeClock) takeDue(target time.Time) []*pendingTimer {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var due, keep []*pendingTimer
	for _, timer := range c.pending {
		switch {
		case timer.cancelled:
		case timer.deadline.After(target):
			keep = append(keep, timer)
		default:
			due = append(due, timer)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	for _, timer := range due {
		if timer.period > 0 {
			timer.deadline = timer.deadline.Add(timer.period)
			keep = append(keep, timer)
		} else {
			timer.done = true
		}
	}
	c.pending = keep
	return due
}
