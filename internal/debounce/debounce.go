// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

// Package debounce coalesces bursts of customization edits into single
// coordinator calls. The buffer is purely a call-rate reducer; validation
// and ordering correctness live in the coordinator.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/waveframe-studio/waveframe/internal/logging"
	"github.com/waveframe-studio/waveframe/internal/metrics"
	"github.com/waveframe-studio/waveframe/internal/session"
)

// DefaultWindow is the quiescence interval after the last edit in a burst.
const DefaultWindow = 500 * time.Millisecond

// ApplyFunc dispatches a coalesced edit to the coordinator.
type ApplyFunc func(ctx context.Context, token string, edit *session.EditRequest) error

// ErrorFunc receives apply failures from asynchronous flushes.
type ErrorFunc func(token string, edit *session.EditRequest, err error)

// Config holds debouncer policy.
type Config struct {
	Window time.Duration
}

type entry struct {
	// flushMu serializes dispatches for one token so flushes resolve in
	// the order they were started.
	flushMu sync.Mutex

	pending *session.EditRequest
	timer   *time.Timer
}

// Debouncer holds at most one pending edit per session. Each submitted
// edit merges into the pending slot (later values win) and restarts the
// quiescence timer; the coordinator sees one call per burst.
//
// photo_shape changes are exempt: they dispatch immediately on their own,
// so a shape toggle is never held behind fields blocked by the readiness
// gate.
type Debouncer struct {
	apply   ApplyFunc
	onError ErrorFunc
	window  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

// New creates a debouncer dispatching through apply.
func New(apply ApplyFunc, cfg Config) *Debouncer {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		apply:   apply,
		window:  window,
		entries: make(map[string]*entry),
	}
}

// OnError sets the callback for asynchronous apply failures. Without one,
// failures are logged and dropped.
func (d *Debouncer) OnError(fn ErrorFunc) { d.onError = fn }

// Submit buffers an edit for the session. The shape part, if present,
// dispatches immediately; everything else waits out the quiescence window.
func (d *Debouncer) Submit(token string, edit *session.EditRequest) {
	if edit == nil || edit.Empty() {
		return
	}

	rest, shape := edit.WithoutShape()
	if shape != nil {
		d.dispatchAsync(token, shape)
	}
	if rest.Empty() {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	e := d.entry(token)
	if e.pending == nil {
		cp := *rest
		e.pending = &cp
	} else {
		e.pending.MergeFrom(rest)
		metrics.EditsCoalesced.Inc()
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(d.window, func() { d.flushToken(token) })
	d.mu.Unlock()
}

// Flush dispatches the session's pending edit now, synchronously. Used by
// tests and by shutdown; a no-op when nothing is pending.
func (d *Debouncer) Flush(token string) {
	e, edit := d.take(token)
	if edit == nil {
		return
	}
	d.dispatch(e, token, edit)
}

// Close stops all timers and synchronously flushes every pending edit,
// then waits for in-flight dispatches.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	type flush struct {
		token string
		e     *entry
		edit  *session.EditRequest
	}
	var flushes []flush
	for token, e := range d.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		if e.pending != nil {
			flushes = append(flushes, flush{token, e, e.pending})
			e.pending = nil
		}
	}
	d.mu.Unlock()

	for _, f := range flushes {
		d.dispatch(f.e, f.token, f.edit)
	}
	d.wg.Wait()
}

// entry returns the session's buffer, creating it if needed. Caller holds
// d.mu.
func (d *Debouncer) entry(token string) *entry {
	e, ok := d.entries[token]
	if !ok {
		e = &entry{}
		d.entries[token] = e
	}
	return e
}

// take removes and returns the pending edit, stopping the timer.
func (d *Debouncer) take(token string) (*entry, *session.EditRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[token]
	if !ok || e.pending == nil {
		return e, nil
	}
	edit := e.pending
	e.pending = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return e, edit
}

func (d *Debouncer) flushToken(token string) {
	e, edit := d.take(token)
	if edit == nil {
		return
	}
	d.wg.Add(1)
	defer d.wg.Done()
	d.dispatch(e, token, edit)
}

func (d *Debouncer) dispatchAsync(token string, edit *session.EditRequest) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	e := d.entry(token)
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.dispatch(e, token, edit)
	}()
}

func (d *Debouncer) dispatch(e *entry, token string, edit *session.EditRequest) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	if err := d.apply(context.Background(), token, edit); err != nil {
		if d.onError != nil {
			d.onError(token, edit, err)
			return
		}
		logging.Warn().Err(err).Str("session", token).Msg("Coalesced edit rejected")
	}
}
