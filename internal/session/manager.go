// Package session owns the lifecycle of one live assistant conversation:
// it wires microphone capture, the duplex wire client, and the playback
// timeline together, dispatches inbound events to the transcript and the
// scheduler, and tears everything down in a fixed order on disconnect.
//
// At most one conversation is live at a time. There is no automatic
// reconnect; a transport failure lands the manager back in
// [StateDisconnected] with a system entry in the transcript.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxline/voxline/internal/capture"
	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/internal/playback"
	"github.com/voxline/voxline/internal/transcript"
	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/live"
	"github.com/voxline/voxline/pkg/pcm"
)

const (
	// DefaultInputRate is the microphone sample rate in Hz.
	DefaultInputRate = 16000

	// DefaultOutputRate is the playback sample rate in Hz.
	DefaultOutputRate = 24000

	// DefaultVideoInterval is the cadence for forwarded video frames (2 fps).
	DefaultVideoInterval = 500 * time.Millisecond

	// closeTimeout bounds how long Disconnect waits for the dispatch loop.
	closeTimeout = 2 * time.Second
)

// ConfigurationError reports a precondition failure detected before any
// network or device activity, such as a missing API key.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("session: configuration: %s", e.Reason)
}

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the live wire session surface the manager drives.
// *live.Client satisfies it.
type Conn interface {
	SendMedia(blob pcm.Blob) error
	Events() <-chan live.Event
	Err() error
	Close() error
}

// DialFunc opens a wire session. Tests substitute an in-memory dialer.
type DialFunc func(ctx context.Context, cfg live.Config) (Conn, error)

// VideoSource supplies JPEG frames for the outbound video cadence.
type VideoSource interface {
	// Frame returns the next encoded JPEG frame.
	Frame() ([]byte, error)
}

// Config holds the session parameters.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string

	// InputRate and OutputRate default to 16 kHz / 24 kHz.
	InputRate  int
	OutputRate int

	// FrameSize and Amplification are forwarded to the capture pipeline;
	// zero values take the capture defaults.
	FrameSize     int
	Amplification float64

	// VideoInterval is the outbound video cadence.
	// Defaults to DefaultVideoInterval.
	VideoInterval time.Duration
}

// Manager coordinates the capture, wire, and playback halves of a live
// conversation. Create with [NewManager]; hooks and the video source must
// be set before Connect.
type Manager struct {
	cfg     Config
	actx    audio.Context
	tlog    *transcript.Log
	log     *slog.Logger
	metrics *observe.Metrics

	// Dialer opens the wire session; nil means the real endpoint.
	Dialer DialFunc

	// Video, if set, supplies JPEG frames sent at the configured cadence
	// while the session is open.
	Video VideoSource

	// OnTurnComplete, if set, is invoked after each completed model turn.
	OnTurnComplete func()

	mu    sync.Mutex
	state State
	conv  *conversation
}

// conversation bundles the resources of one live session so that the
// disconnect path and the transport-failure path can tear them down
// exactly once between them.
type conversation struct {
	conn     Conn
	pipeline *capture.Pipeline
	sched    *playback.Scheduler
	playDev  audio.PlaybackDevice
	cancel   context.CancelFunc
	metrics  *observe.Metrics

	// done closes when the dispatch loop has exited.
	done chan struct{}

	teardownOnce sync.Once
}

// teardown releases every session resource in dependency order: the
// microphone stops feeding first, then the wire closes (which ends the
// dispatch loop), then the playback side shuts down.
func (c *conversation) teardown() {
	c.teardownOnce.Do(func() {
		c.pipeline.Close()
		c.conn.Close()
		c.cancel()
		c.sched.Close()
		c.playDev.Stop()
		c.playDev.Close()
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	})
}

// NewManager returns an idle manager. actx supplies the audio devices and
// tlog receives conversation and system entries.
func NewManager(actx audio.Context, cfg Config, tlog *transcript.Log, logger *slog.Logger) *Manager {
	if cfg.InputRate <= 0 {
		cfg.InputRate = DefaultInputRate
	}
	if cfg.OutputRate <= 0 {
		cfg.OutputRate = DefaultOutputRate
	}
	if cfg.VideoInterval <= 0 {
		cfg.VideoInterval = DefaultVideoInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tlog == nil {
		tlog = transcript.New(transcript.DefaultMaxEntries)
	}
	return &Manager{
		cfg:     cfg,
		actx:    actx,
		tlog:    tlog,
		log:     logger,
		metrics: observe.DefaultMetrics(),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether a session is open.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// Volume returns the current microphone volume envelope, or 0 when no
// session is live.
func (m *Manager) Volume() float64 {
	m.mu.Lock()
	conv := m.conv
	m.mu.Unlock()
	if conv == nil {
		return 0
	}
	return conv.pipeline.Volume()
}

// Transcript returns the conversation log.
func (m *Manager) Transcript() *transcript.Log {
	return m.tlog
}

// Connect opens a live session. It fails without any network or device
// activity when a session is already live or the API key is missing.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen || m.state == StateClosing {
		m.mu.Unlock()
		return fmt.Errorf("session: already connected")
	}
	m.state = StateConnecting
	m.mu.Unlock()

	if m.cfg.APIKey == "" {
		m.tlog.Append(transcript.RoleSystem, "Cannot connect: no API key configured.")
		m.log.Error("connect refused", "reason", "missing api key")
		m.setState(StateError)
		return &ConfigurationError{Reason: "missing API key"}
	}

	conv, err := m.open(ctx)
	if err != nil {
		m.tlog.Append(transcript.RoleSystem, fmt.Sprintf("Connection failed: %v", err))
		m.log.Error("connect failed", "error", err)
		m.setState(StateError)
		return err
	}

	m.mu.Lock()
	m.conv = conv
	m.state = StateOpen
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(context.Background(), 1)
	m.tlog.Append(transcript.RoleSystem, "Connected.")
	m.log.Info("session open", "model", m.cfg.Model, "input_rate", m.cfg.InputRate, "output_rate", m.cfg.OutputRate)
	return nil
}

// open builds the playback, wire, and capture sides in that order,
// unwinding everything already built when a later step fails.
func (m *Manager) open(ctx context.Context) (*conversation, error) {
	sched := playback.NewScheduler(m.cfg.OutputRate)

	playDev, err := m.actx.NewPlayback(audio.Config{SampleRate: m.cfg.OutputRate}, sched.Pull)
	if err != nil {
		sched.Close()
		return nil, fmt.Errorf("session: open playback: %w", err)
	}
	if err := playDev.Start(); err != nil {
		playDev.Close()
		sched.Close()
		return nil, fmt.Errorf("session: start playback: %w", err)
	}

	dial := m.Dialer
	if dial == nil {
		dial = func(ctx context.Context, cfg live.Config) (Conn, error) {
			return live.Dial(ctx, cfg)
		}
	}
	conn, err := dial(ctx, live.Config{
		APIKey:       m.cfg.APIKey,
		Model:        m.cfg.Model,
		Voice:        m.cfg.Voice,
		Instructions: m.cfg.Instructions,
	})
	if err != nil {
		playDev.Stop()
		playDev.Close()
		sched.Close()
		return nil, err
	}

	pipeline, err := capture.New(m.actx, capture.Config{
		SampleRate:    m.cfg.InputRate,
		FrameSize:     m.cfg.FrameSize,
		Amplification: m.cfg.Amplification,
	}, conn, m.log)
	if err != nil {
		conn.Close()
		playDev.Stop()
		playDev.Close()
		sched.Close()
		return nil, err
	}
	if err := pipeline.Start(); err != nil {
		pipeline.Close()
		conn.Close()
		playDev.Stop()
		playDev.Close()
		sched.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	conv := &conversation{
		conn:     conn,
		pipeline: pipeline,
		sched:    sched,
		playDev:  playDev,
		cancel:   cancel,
		metrics:  m.metrics,
		done:     make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(conv.done)
		m.dispatch(conv)
		return nil
	})
	if m.Video != nil {
		g.Go(func() error {
			m.videoLoop(gctx, conv)
			return nil
		})
	}
	go func() { _ = g.Wait() }()

	return conv, nil
}

// Disconnect closes the live session and releases all resources. It is a
// safe no-op when no session is live and also clears a previous error
// state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.conv == nil {
		if m.state == StateError {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		return
	}
	conv := m.conv
	m.conv = nil
	m.state = StateClosing
	m.mu.Unlock()

	conv.teardown()
	select {
	case <-conv.done:
	case <-time.After(closeTimeout):
		m.log.Warn("dispatch loop did not exit before the close deadline")
	}

	m.setState(StateDisconnected)
	m.log.Info("session closed")
}

// SendVideoFrame forwards one JPEG frame on the outbound channel. It is a
// no-op unless a session is open; audio and video share the channel, so
// ordering between them is send order.
func (m *Manager) SendVideoFrame(jpeg []byte) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conv == nil {
		m.mu.Unlock()
		return nil
	}
	conn := m.conv.conn
	m.mu.Unlock()

	if err := conn.SendMedia(pcm.JPEGBlob(jpeg)); err != nil {
		return fmt.Errorf("session: send video frame: %w", err)
	}
	m.metrics.VideoFramesSent.Add(context.Background(), 1)
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// dispatch is the single consumer of the inbound event stream. It exits
// when the wire session ends; a transport failure tears the session down
// and reports it in the transcript.
func (m *Manager) dispatch(conv *conversation) {
	for ev := range conv.conn.Events() {
		switch ev := ev.(type) {
		case live.AudioEvent:
			m.handleAudio(conv, ev)
		case live.TranscriptEvent:
			role := transcript.RoleModel
			if ev.Source == "user" {
				role = transcript.RoleUser
			}
			m.tlog.Append(role, ev.Text)
		case live.InterruptedEvent:
			conv.sched.Flush()
			m.metrics.Flushes.Add(context.Background(), 1)
			m.log.Debug("playback flushed on interruption")
		case live.TurnCompleteEvent:
			if m.OnTurnComplete != nil {
				m.OnTurnComplete()
			}
		case live.ErrorEvent:
			m.tlog.Append(transcript.RoleSystem, fmt.Sprintf("Server error: %v", ev.Err))
			m.log.Error("server error", "error", ev.Err)
		}
	}

	if err := conv.conn.Err(); err != nil {
		m.metrics.TransportErrors.Add(context.Background(), 1)
		m.tlog.Append(transcript.RoleSystem, fmt.Sprintf("Connection lost: %v", err))
		m.log.Error("transport failure", "error", err)
		m.finishFailed(conv)
	}
}

// finishFailed lands the manager in Disconnected after a transport
// failure, unless Disconnect already took ownership of the conversation.
func (m *Manager) finishFailed(conv *conversation) {
	m.mu.Lock()
	current := m.conv == conv
	if current {
		m.conv = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if current {
		conv.teardown()
	}
}

// handleAudio decodes one inbound chunk and appends it to the playback
// timeline. Malformed chunks are dropped; one bad chunk never ends the
// session.
func (m *Manager) handleAudio(conv *conversation, ev live.AudioEvent) {
	samples, err := pcm.Decode(ev.Data, m.cfg.OutputRate, m.cfg.OutputRate)
	if err != nil {
		m.metrics.DecodeErrors.Add(context.Background(), 1)
		m.log.Warn("dropping malformed audio chunk", "error", err)
		return
	}
	if start := conv.sched.Schedule(samples, nil); start >= 0 {
		m.metrics.ChunksScheduled.Add(context.Background(), 1)
		m.metrics.ChunkDuration.Record(context.Background(), pcm.Duration(len(samples), m.cfg.OutputRate))
	}
}

// videoLoop forwards frames from the video source at the configured
// cadence until the session ends. Source failures skip the tick.
func (m *Manager) videoLoop(ctx context.Context, conv *conversation) {
	ticker := time.NewTicker(m.cfg.VideoInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := m.Video.Frame()
			if err != nil {
				m.log.Debug("video frame unavailable", "error", err)
				continue
			}
			if err := m.SendVideoFrame(frame); err != nil {
				m.log.Debug("video frame send failed", "error", err)
			}
		}
	}
}
