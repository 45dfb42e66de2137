// Package playback schedules decoded response audio back-to-back on the
// output timeline and supports an immediate, total flush on barge-in.
//
// The output clock is driven by the playback device: every pull of n
// samples advances the clock by n/rate seconds. A [Scheduler] places each
// chunk at max(clock, cursor) so consecutive chunks never overlap and
// nothing is scheduled in the past, then advances the cursor past the
// chunk's end. Chunks are played in arrival order; the scheduler does not
// reorder by sequence number, so an upstream that delivers chunks out of
// order will produce audible glitches.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// StopError reports an attempt to stop a playback source that already
// finished or was already stopped. It signals a benign double-stop and is
// swallowed by flush and teardown paths.
type StopError struct{}

func (*StopError) Error() string { return "playback: source already stopped" }

// source is one scheduled, decoded audio buffer on the output timeline.
type source struct {
	start   int64 // absolute start position, in samples on the output clock
	samples []float32
	done    atomic.Bool
	onDone  func()
}

// stop marks the source stopped. It returns a *StopError if the source
// already completed or was stopped before.
func (s *source) stop() error {
	if s.done.Swap(true) {
		return &StopError{}
	}
	return nil
}

// Scheduler owns the pending-source set and the timeline cursor.
// All methods are safe for concurrent use; Pull is additionally safe to
// call after Close (it zero-fills, so a device callback firing during
// teardown is harmless).
type Scheduler struct {
	rate int

	mu           sync.Mutex
	pending      map[*source]struct{}
	cursor       float64 // seconds; earliest time the next source may begin
	clockSamples int64   // samples pulled since the clock opened
	closed       bool
}

// NewScheduler creates a scheduler for an output clock at the given sample
// rate.
func NewScheduler(rate int) *Scheduler {
	return &Scheduler{
		rate:    rate,
		pending: make(map[*source]struct{}),
	}
}

// Schedule places a decoded chunk on the timeline at
// max(current clock time, cursor), adds it to the pending set, and advances
// the cursor past its end. onDone (optional) fires once when the chunk
// finishes playing naturally; it does not fire for flushed sources.
// Schedule returns the chosen start time in seconds. Chunks arriving after
// Close are discarded (start -1): a decode that completes after session
// teardown has no timeline to land on.
func (s *Scheduler) Schedule(samples []float32, onDone func()) float64 {
	s.mu.Lock()
	if s.closed || len(samples) == 0 {
		s.mu.Unlock()
		return -1
	}

	now := float64(s.clockSamples) / float64(s.rate)
	start := now
	if s.cursor > start {
		start = s.cursor
	}

	src := &source{
		start:   int64(start*float64(s.rate) + 0.5),
		samples: samples,
		onDone:  onDone,
	}
	s.pending[src] = struct{}{}
	s.cursor = start + float64(len(samples))/float64(s.rate)
	s.mu.Unlock()

	return start
}

// Pull fills out with the next len(out) samples of the timeline and
// advances the output clock. Regions with no scheduled audio are silent.
// Completion hooks for sources that ended inside this window run after the
// lock is released.
func (s *Scheduler) Pull(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	winStart := s.clockSamples
	winEnd := winStart + int64(len(out))

	var finished []*source
	for src := range s.pending {
		srcEnd := src.start + int64(len(src.samples))
		lo, hi := src.start, srcEnd
		if winStart > lo {
			lo = winStart
		}
		if winEnd < hi {
			hi = winEnd
		}
		for p := lo; p < hi; p++ {
			out[p-winStart] += src.samples[p-src.start]
		}
		if srcEnd <= winEnd {
			delete(s.pending, src)
			if !src.done.Swap(true) {
				finished = append(finished, src)
			}
		}
	}
	s.clockSamples = winEnd
	s.mu.Unlock()

	for _, src := range finished {
		if src.onDone != nil {
			src.onDone()
		}
	}
}

// Flush stops every pending source immediately, clears the pending set,
// and resets the cursor to zero so the next chunk starts at the current
// clock time rather than a stale future time. Double-stop errors are
// swallowed.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	sources := make([]*source, 0, len(s.pending))
	for src := range s.pending {
		sources = append(sources, src)
	}
	s.pending = make(map[*source]struct{})
	s.cursor = 0
	s.mu.Unlock()

	s.stopAll(sources)
}

// Close stops all pending sources best-effort and shuts the timeline down.
// Subsequent Schedule calls are discarded and Pull produces silence.
// Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sources := make([]*source, 0, len(s.pending))
	for src := range s.pending {
		sources = append(sources, src)
	}
	s.pending = make(map[*source]struct{})
	s.cursor = 0
	s.mu.Unlock()

	s.stopAll(sources)
}

// stopAll stops each source, swallowing the benign double-stop error.
// Individual stop failures never abort the sequence.
func (s *Scheduler) stopAll(sources []*source) {
	for _, src := range sources {
		if err := src.stop(); err != nil {
			var se *StopError
			if !errors.As(err, &se) {
				slog.Warn("playback: stop source", "err", err)
			}
		}
	}
}

// Now returns the current output clock time in seconds.
func (s *Scheduler) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.clockSamples) / float64(s.rate)
}

// Cursor returns the earliest time at which the next source may begin.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pending returns the number of sources currently scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
