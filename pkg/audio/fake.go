package audio

import "sync"

// FakeContext is an in-memory [Context] for tests. Capture devices deliver
// whatever the test feeds them; playback devices advance only when the test
// pulls. Set CaptureErr or PlaybackErr to make the corresponding open call
// fail (e.g. to simulate a denied microphone).
type FakeContext struct {
	CaptureErr  error
	PlaybackErr error

	mu       sync.Mutex
	captures []*FakeCapture
	players  []*FakePlayback
	closed   bool
}

// NewFakeContext returns an empty fake backend.
func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

func (f *FakeContext) NewCapture(cfg Config, cb DataCallback) (CaptureDevice, error) {
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	dev := &FakeCapture{cb: cb, rate: cfg.SampleRate}
	f.mu.Lock()
	f.captures = append(f.captures, dev)
	f.mu.Unlock()
	return dev, nil
}

func (f *FakeContext) NewPlayback(cfg Config, pull PullCallback) (PlaybackDevice, error) {
	if f.PlaybackErr != nil {
		return nil, f.PlaybackErr
	}
	dev := &FakePlayback{pull: pull, rate: cfg.SampleRate}
	f.mu.Lock()
	f.players = append(f.players, dev)
	f.mu.Unlock()
	return dev, nil
}

func (f *FakeContext) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Closed reports whether Close was called.
func (f *FakeContext) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Capture returns the i-th capture device opened on this context.
func (f *FakeContext) Capture(i int) *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures[i]
}

// Playback returns the i-th playback device opened on this context.
func (f *FakeContext) Playback(i int) *FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.players[i]
}

// FakeCapture is a test capture device. The test drives it by calling
// [FakeCapture.Feed] while the device is started.
type FakeCapture struct {
	rate int

	mu      sync.Mutex
	cb      DataCallback
	started bool
	stops   int
	closes  int
}

func (d *FakeCapture) Start() error {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	return nil
}

func (d *FakeCapture) Stop() {
	d.mu.Lock()
	d.started = false
	d.stops++
	d.mu.Unlock()
}

func (d *FakeCapture) Close() {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
}

// Feed invokes the device callback with samples, mimicking a hardware
// capture interrupt. It is a no-op unless the device is started.
func (d *FakeCapture) Feed(samples []float32) {
	d.mu.Lock()
	cb, started := d.cb, d.started
	d.mu.Unlock()
	if started && cb != nil {
		cb(samples)
	}
}

// Started reports whether the device is currently running.
func (d *FakeCapture) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// StopCount returns how many times Stop was called.
func (d *FakeCapture) StopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// CloseCount returns how many times Close was called.
func (d *FakeCapture) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// FakePlayback is a test playback device. The test advances the output
// clock by calling [FakePlayback.Pull].
type FakePlayback struct {
	rate int

	mu      sync.Mutex
	pull    PullCallback
	started bool
	closes  int
}

func (d *FakePlayback) Start() error {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	return nil
}

func (d *FakePlayback) Stop() {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *FakePlayback) Close() {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
}

// Pull requests n samples from the device's pull callback and returns them,
// mimicking the hardware draining the output buffer.
func (d *FakePlayback) Pull(n int) []float32 {
	d.mu.Lock()
	pull := d.pull
	d.mu.Unlock()
	out := make([]float32, n)
	if pull != nil {
		pull(out)
	}
	return out
}

// CloseCount returns how many times Close was called.
func (d *FakePlayback) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}
