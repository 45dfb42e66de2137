// Package capture runs the microphone side of the pipeline: it chunks the
// device callback stream into fixed frames, publishes an RMS volume
// envelope, encodes each frame for the wire, and forwards it to the live
// session without ever blocking the audio thread. A frame that cannot be
// forwarded immediately is dropped; the session always receives fresh
// audio rather than a growing backlog.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/pcm"
)

const (
	// DefaultFrameSize is the number of samples accumulated before a frame
	// is encoded and forwarded (256 ms at 16 kHz).
	DefaultFrameSize = 4096

	// DefaultAmplification scales raw RMS into the displayed volume range.
	DefaultAmplification = 5.0
)

// CaptureError reports a microphone device failure. Construction failures
// leave no partial state behind: a pipeline whose device could not open
// holds no device and needs no teardown.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture: %v", e.Err) }

func (e *CaptureError) Unwrap() error { return e.Err }

// Outbound receives encoded media frames. *live.Client satisfies it.
type Outbound interface {
	SendMedia(blob pcm.Blob) error
}

// Config describes the capture stream.
type Config struct {
	// SampleRate of the microphone stream in Hz. Required.
	SampleRate int

	// FrameSize is the number of samples per encoded frame.
	// Defaults to DefaultFrameSize.
	FrameSize int

	// Amplification scales RMS into the published volume envelope.
	// Defaults to DefaultAmplification.
	Amplification float64
}

// Pipeline owns one capture device and streams encoded frames to an
// Outbound sink. Create with [New], run with [Start], release with [Close].
type Pipeline struct {
	cfg     Config
	out     Outbound
	dev     audio.CaptureDevice
	log     *slog.Logger
	metrics *observe.Metrics

	// volume holds math.Float64bits of the latest envelope value.
	volume atomic.Uint64

	// frames decouples the audio thread from the network writer. Capacity
	// one: a frame that arrives while the previous is still in flight is
	// dropped on the audio thread via a non-blocking send.
	frames chan pcm.Blob

	// buf accumulates callback samples; touched only on the audio thread.
	buf []float32

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New opens a capture device on actx and prepares the pipeline. The device
// is created stopped; no audio flows until [Pipeline.Start]. Returns a
// *CaptureError if the device cannot be opened.
func New(actx audio.Context, cfg Config, out Outbound, logger *slog.Logger) (*Pipeline, error) {
	if cfg.SampleRate <= 0 {
		return nil, &CaptureError{Err: fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)}
	}
	if out == nil {
		return nil, &CaptureError{Err: fmt.Errorf("nil outbound sink")}
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.Amplification <= 0 {
		cfg.Amplification = DefaultAmplification
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:     cfg,
		out:     out,
		log:     logger,
		metrics: observe.DefaultMetrics(),
		frames:  make(chan pcm.Blob, 1),
		done:    make(chan struct{}),
	}

	dev, err := actx.NewCapture(audio.Config{SampleRate: cfg.SampleRate}, p.onSamples)
	if err != nil {
		return nil, &CaptureError{Err: fmt.Errorf("open device: %w", err)}
	}
	p.dev = dev
	return p, nil
}

// Start begins capturing. Safe to call once; a second call is a no-op.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return &CaptureError{Err: fmt.Errorf("pipeline closed")}
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	if err := p.dev.Start(); err != nil {
		return &CaptureError{Err: fmt.Errorf("start device: %w", err)}
	}

	p.wg.Add(1)
	go p.forward()
	return nil
}

// Close stops the device, releases it, and resets the volume envelope.
// Safe to call more than once and from any goroutine.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.dev.Stop()
	p.dev.Close()
	if started {
		close(p.done)
		p.wg.Wait()
	}
	p.setVolume(0)
}

// Volume returns the latest published volume envelope in [0, 1].
func (p *Pipeline) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

func (p *Pipeline) setVolume(v float64) {
	p.volume.Store(math.Float64bits(v))
}

// onSamples runs on the audio thread. It must never block.
func (p *Pipeline) onSamples(samples []float32) {
	p.buf = append(p.buf, samples...)
	for len(p.buf) >= p.cfg.FrameSize {
		p.emitFrame(p.buf[:p.cfg.FrameSize])
		n := copy(p.buf, p.buf[p.cfg.FrameSize:])
		p.buf = p.buf[:n]
	}
}

func (p *Pipeline) emitFrame(frame []float32) {
	p.setVolume(math.Min(1, audio.RMS(frame)*p.cfg.Amplification))

	blob := pcm.Encode(frame, p.cfg.SampleRate)
	select {
	case p.frames <- blob:
	default:
		p.metrics.FramesDropped.Add(context.Background(), 1)
	}
}

// forward drains the frame channel onto the outbound sink. Send failures
// are logged and counted but never stop the stream; the session manager
// decides when capture ends.
func (p *Pipeline) forward() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case blob := <-p.frames:
			if err := p.out.SendMedia(blob); err != nil {
				p.metrics.FramesDropped.Add(context.Background(), 1)
				p.log.Debug("frame send failed", "error", err)
				continue
			}
			p.metrics.FramesSent.Add(context.Background(), 1)
		}
	}
}
