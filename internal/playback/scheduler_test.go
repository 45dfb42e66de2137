package playback

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

// testRate keeps the sample math readable: 1000 samples = 1 second.
const testRate = 1000

func pull(s *Scheduler, n int) []float32 {
	out := make([]float32, n)
	s.Pull(out)
	return out
}

func TestScheduleBackToBack(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)

	durations := []int{100, 250, 50, 400} // samples
	var prevEnd float64
	for _, d := range durations {
		start := s.Schedule(make([]float32, d), nil)
		if start < prevEnd {
			t.Fatalf("chunk start %v overlaps previous end %v", start, prevEnd)
		}
		prevEnd = start + float64(d)/testRate
	}

	if got, want := s.Cursor(), 0.8; math.Abs(got-want) > 1e-9 {
		t.Errorf("cursor = %v, want %v", got, want)
	}
	if s.Pending() != len(durations) {
		t.Errorf("pending = %d, want %d", s.Pending(), len(durations))
	}
}

func TestScheduleAfterClockPassedCursor(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)

	// Cursor reaches 9.0 via a 9-second chunk; the clock then runs to 10.0.
	s.Schedule(make([]float32, 9*testRate), nil)
	pull(s, 10*testRate)

	if got := s.Now(); math.Abs(got-10.0) > 1e-9 {
		t.Fatalf("clock = %v, want 10.0", got)
	}

	// A 0.5 s chunk arriving now must start at the clock, not the stale cursor.
	start := s.Schedule(make([]float32, testRate/2), nil)
	if math.Abs(start-10.0) > 1e-9 {
		t.Errorf("start = %v, want 10.0", start)
	}
	if got := s.Cursor(); math.Abs(got-10.5) > 1e-9 {
		t.Errorf("cursor = %v, want 10.5", got)
	}
}

func TestPullPlaysScheduledAudio(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)

	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = 0.5
	}
	s.Schedule(samples, nil)

	out := pull(s, 200)
	for i := range 100 {
		if out[i] != 0.5 {
			t.Fatalf("out[%d] = %v, want 0.5", i, out[i])
		}
	}
	for i := 100; i < 200; i++ {
		if out[i] != 0 {
			t.Fatalf("out[%d] = %v, want silence", i, out[i])
		}
	}
}

func TestCompletionHookFiresOnce(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)

	var done atomic.Int32
	s.Schedule(make([]float32, 100), func() { done.Add(1) })

	pull(s, 50)
	if done.Load() != 0 {
		t.Fatal("hook fired before the source finished")
	}
	pull(s, 100)
	if done.Load() != 1 {
		t.Fatalf("hook fired %d times, want 1", done.Load())
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0", s.Pending())
	}

	// Further pulls must not re-fire.
	pull(s, 100)
	if done.Load() != 1 {
		t.Errorf("hook re-fired after completion")
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)

	var done atomic.Int32
	for range 3 {
		s.Schedule(make([]float32, testRate), func() { done.Add(1) })
	}
	pull(s, 500) // clock at 0.5 s, everything still pending

	s.Flush()

	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after flush", s.Pending())
	}
	if s.Cursor() != 0 {
		t.Errorf("cursor = %v, want 0 after flush", s.Cursor())
	}
	if done.Load() != 0 {
		t.Errorf("flushed sources fired completion hooks")
	}

	// The next chunk starts at the current clock time, not a stale future one.
	start := s.Schedule(make([]float32, 100), nil)
	if now := s.Now(); math.Abs(start-now) > 1e-9 {
		t.Errorf("post-flush start = %v, want clock time %v", start, now)
	}

	// Flushed audio must not be heard.
	out := pull(s, 100)
	if out[0] != 0 {
		t.Error("flushed source still audible")
	}
}

func TestFlushIdempotentAfterCompletion(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)
	s.Schedule(make([]float32, 10), nil)
	pull(s, 20) // source completes naturally

	// Double flush over an empty set must be harmless.
	s.Flush()
	s.Flush()
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0", s.Pending())
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testRate)
	for range 3 {
		s.Schedule(make([]float32, testRate), nil)
	}

	s.Close()
	s.Close() // idempotent

	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after close", s.Pending())
	}

	// Stale chunks decoded after teardown are discarded.
	if start := s.Schedule(make([]float32, 100), nil); start != -1 {
		t.Errorf("Schedule after Close returned %v, want -1", start)
	}

	// A device callback firing after close must be safe and silent.
	out := pull(s, 100)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want silence after close", i, v)
		}
	}
}

func TestStopErrorIsBenign(t *testing.T) {
	t.Parallel()

	src := &source{samples: make([]float32, 1)}
	if err := src.stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	err := src.stop()
	if err == nil {
		t.Fatal("second stop: want *StopError")
	}
	var se *StopError
	if !errors.As(err, &se) {
		t.Fatalf("second stop returned %T, want *StopError", err)
	}
}
