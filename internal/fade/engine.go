// Package fade implements a single in-flight, cancellable, linear
// interpolation engine that drives a universe from its current raw
// state toward a target snapshot over a fixed duration.
package fade

import (
	"math"
	"sync"
	"time"

	"github.com/lacylights/dmxengine/internal/universe"
)

// Handle is returned by FadeTo. Done is closed exactly once, either
// when the fade completes naturally, is cancelled, or is superseded
// by a later FadeTo call. It never rolls back: whatever state was
// last applied stays applied.
type Handle struct {
	done chan struct{}
}

// Done returns a channel that is closed when this fade resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

type activeFade struct {
	start     universe.Snapshot
	target    universe.Snapshot
	startTime time.Time
	duration  time.Duration
	handle    *Handle
}

// Engine runs a ticker-driven fade loop over a single *universe.Universe.
// At most one fade is active at a time; starting a new one implicitly
// cancels (without rollback) whatever was running.
type Engine struct {
	mu       sync.Mutex
	universe *universe.Universe
	tick     time.Duration
	active   *activeFade

	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
}

// NewEngine creates a fade engine bound to u. tickInterval should match
// the transmitter's refresh period so the bus never samples mid-step.
func NewEngine(u *universe.Universe, tickInterval time.Duration) *Engine {
	if tickInterval <= 0 {
		tickInterval = 25 * time.Millisecond
	}
	return &Engine{
		universe: u,
		tick:     tickInterval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the engine's update loop. Safe to call once.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.runLoop()
}

// Stop halts the update loop. Any in-flight fade is left wherever it
// last landed; its handle is resolved.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)
	<-e.doneChan
	e.resolveActive()
}

func (e *Engine) runLoop() {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.step()
		}
	}
}

// FadeTo starts a linear fade from the universe's current raw state to
// target over duration. Calling FadeTo while a fade is active cancels
// the prior one first (its handle resolves immediately, without
// rolling back whatever had already been applied). duration <= 0
// applies target immediately.
func (e *Engine) FadeTo(target universe.Snapshot, duration time.Duration) *Handle {
	e.mu.Lock()

	e.resolveActiveLocked()

	if duration <= 0 {
		e.mu.Unlock()
		e.universe.ApplySnapshotBytes(target)
		h := &Handle{done: make(chan struct{})}
		close(h.done)
		return h
	}

	h := &Handle{done: make(chan struct{})}
	e.active = &activeFade{
		start:     e.universe.GetRaw(),
		target:    target,
		startTime: time.Now(),
		duration:  duration,
		handle:    h,
	}
	e.mu.Unlock()
	return h
}

// FadeToBlackout fades every channel to zero over duration.
func (e *Engine) FadeToBlackout(duration time.Duration) *Handle {
	var zeros universe.Snapshot
	return e.FadeTo(zeros, duration)
}

// Cancel stops the current fade wherever it is, with no rollback, and
// resolves its handle. A no-op if nothing is active.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.resolveActiveLocked()
	e.mu.Unlock()
}

// resolveActiveLocked closes the current fade's handle and clears it.
// Caller must hold e.mu.
func (e *Engine) resolveActiveLocked() {
	if e.active != nil {
		close(e.active.handle.done)
		e.active = nil
	}
}

func (e *Engine) resolveActive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolveActiveLocked()
}

// IsActive reports whether a fade is currently in flight.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// step advances the active fade by one tick, applying exactly one
// snapshot to the universe.
func (e *Engine) step() {
	e.mu.Lock()
	active := e.active
	if active == nil {
		e.mu.Unlock()
		return
	}

	elapsed := time.Since(active.startTime)
	progress := float64(elapsed) / float64(active.duration)

	if progress >= 1 {
		e.active = nil
		handle := active.handle
		e.mu.Unlock()

		e.universe.ApplySnapshotBytes(active.target)
		close(handle.done)
		return
	}
	e.mu.Unlock()

	var out universe.Snapshot
	for i := range out {
		start := float64(active.start[i])
		target := float64(active.target[i])
		current := start + (target-start)*progress
		out[i] = clampByte(math.Round(current))
	}
	e.universe.ApplySnapshotBytes(out)
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
