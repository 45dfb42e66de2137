// Package audio defines the capture and playback device abstraction used by
// the voxline pipeline, plus small helpers for level measurement.
//
// The two primary abstractions are:
//
//   - [Context] — enumerates devices and opens capture/playback streams.
//   - [CaptureDevice] / [PlaybackDevice] — live device handles with
//     idempotent teardown.
//
// The real implementation wraps malgo (miniaudio); [FakeContext] provides a
// deterministic in-memory backend for tests. Samples everywhere are
// normalized mono float32 in [-1, 1].
package audio

// DataCallback receives one capture callback's worth of normalized mono
// samples. The slice is only valid for the duration of the call; callbacks
// that need to retain audio must copy it.
type DataCallback func(samples []float32)

// PullCallback fills out with the next len(out) playback samples. The
// callee zero-fills any portion it has no audio for.
type PullCallback func(out []float32)

// Config describes the stream format for a capture or playback device.
type Config struct {
	// SampleRate in Hz (e.g. 16000 for capture, 24000 for playback).
	SampleRate int
}

// Context is the entry point for an audio backend. Implementations must be
// safe for concurrent use.
type Context interface {
	// NewCapture opens a mono capture stream delivering samples to cb.
	// The device is created stopped; call [CaptureDevice.Start].
	NewCapture(cfg Config, cb DataCallback) (CaptureDevice, error)

	// NewPlayback opens a mono playback stream that pulls samples from
	// pull. The device is created stopped; call [PlaybackDevice.Start].
	NewPlayback(cfg Config, pull PullCallback) (PlaybackDevice, error)

	// Close releases the backend. Devices must be closed first.
	Close()
}

// CaptureDevice is a live microphone stream.
type CaptureDevice interface {
	Start() error

	// Stop halts the callback stream. Safe to call more than once.
	Stop()

	// Close releases the device. Safe to call more than once and after Stop.
	Close()
}

// PlaybackDevice is a live speaker stream.
type PlaybackDevice interface {
	Start() error
	Stop()
	Close()
}
