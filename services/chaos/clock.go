// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chaos

import (
	"sync"
	"time"
)

// =============================================================================
// Clock
// =============================================================================

// Clock is the source of time, one-shot timers and tickers for the engine.
//
// # Description
//
// Every deferred mutation in the engine goes through a Clock so that it can
// be cancelled on Close and driven deterministically in tests.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc runs f once after d elapses unless the Timer is stopped.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker returns a Ticker delivering ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Timer is a cancelable one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Ticker delivers periodic ticks on a channel.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// RealClock is the wall-clock implementation backed by package time.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time   { return r.t.C }
func (r realTicker) Reset(d time.Duration) { r.t.Reset(d) }
func (r realTicker) Stop()                 { r.t.Stop() }

// =============================================================================
// Manual Clock (for testing)
// =============================================================================

// ManualClock is a Clock that only moves when Advance is called.
//
// # Description
//
// Timers and tickers fire in deadline order during Advance. Timer callbacks
// run synchronously on the goroutine calling Advance, outside the clock's
// own lock, so callbacks may schedule new timers. Ticker sends are
// non-blocking with a buffer of one, like time.Ticker.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*manualTimer
	tickers []*manualTicker
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock reaches now+d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// NewTicker registers a ticker with period d.
func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{clock: c, period: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing everything that falls due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		timer, ticker, at := c.nextDueLocked(target)
		if timer == nil && ticker == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = at
		if ticker != nil {
			select {
			case ticker.ch <- at:
			default:
			}
			ticker.next = at.Add(ticker.period)
			c.mu.Unlock()
			continue
		}
		timer.fired = true
		c.mu.Unlock()
		timer.fn()
	}
}

// PendingTimers returns how many one-shot timers are neither fired nor
// stopped.
func (c *ManualClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// ActiveTickers returns how many tickers have not been stopped.
func (c *ManualClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// TickerPeriods returns the period of every active ticker in creation order.
func (c *ManualClock) TickerPeriods() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.tickers {
		if !t.stopped {
			out = append(out, t.period)
		}
	}
	return out
}

// nextDueLocked finds the earliest timer or ticker due at or before target.
// Timers win ties so that expiries scheduled for an instant land before a
// tick at the same instant.
func (c *ManualClock) nextDueLocked(target time.Time) (*manualTimer, *manualTicker, time.Time) {
	var (
		bestTimer  *manualTimer
		bestTicker *manualTicker
		bestAt     time.Time
	)
	for _, t := range c.timers {
		if t.fired || t.stopped || t.at.After(target) {
			continue
		}
		if bestTimer == nil || t.at.Before(bestAt) {
			bestTimer, bestAt = t, t.at
		}
	}
	for _, t := range c.tickers {
		if t.stopped || t.next.After(target) {
			continue
		}
		if bestTimer == nil && bestTicker == nil || t.next.Before(bestAt) {
			bestTimer, bestTicker, bestAt = nil, t, t.next
		}
	}
	return bestTimer, bestTicker, bestAt
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type manualTicker struct {
	clock   *ManualClock
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.period = d
	t.next = t.clock.now.Add(d)
	t.stopped = false
}

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
