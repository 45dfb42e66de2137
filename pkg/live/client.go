// Package live implements the duplex wire session to the Gemini Live
// endpoint.
//
// It establishes a bidirectional WebSocket connection and exchanges JSON
// messages according to the BidiGenerateContent protocol. Outbound media
// (PCM audio frames and JPEG video frames) share one multiplexed channel,
// so their relative ordering is send order. Inbound server messages are
// decoded into [Event] values and delivered in arrival order on a single
// channel.
package live

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxline/voxline/pkg/pcm"
)

const (
	// DefaultModel is the Live-capable model used when none is configured.
	DefaultModel = "gemini-2.0-flash-live-001"

	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// TransportError wraps a connection-level failure that terminated the
// session. It is surfaced once via [Client.Err] after the event channel
// closes; recovery requires an explicit reconnect by the user.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("live: transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Config fixes the session parameters at connect time. There is no runtime
// renegotiation.
type Config struct {
	// APIKey authenticates the connection. Required.
	APIKey string

	// Model selects the Live model. Empty means [DefaultModel].
	Model string

	// BaseURL overrides the WebSocket endpoint, primarily so tests can
	// point at a local mock server.
	BaseURL string

	// Instructions is the static system prompt sent in the setup message.
	Instructions string

	// Voice selects a prebuilt voice for synthesized replies. Optional.
	Voice string
}

// Client is one duplex wire session. Create it with [Dial]; it is live
// until [Client.Close] or a transport failure, whichever comes first.
// SendMedia may be called concurrently with event consumption.
type Client struct {
	conn   *websocket.Conn
	events chan Event

	writeMu sync.Mutex

	mu     sync.Mutex
	errVal error
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial opens a WebSocket connection to the Live endpoint and sends the
// setup message: audio response modality, output transcription enabled,
// and the configured system instruction. The returned client is ready to
// accept media immediately.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("live: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		baseURL, cfg.APIKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("dial: %w", err)}
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := c.sendSetup(model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, &TransportError{Err: fmt.Errorf("setup: %w", err)}
	}

	go c.receiveLoop()
	go c.keepaliveLoop()

	return c, nil
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (c *Client) sendSetup(model string, cfg Config) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			OutputAudioTranscription: &struct{}{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return c.writeJSON(msg)
}

// SendMedia forwards an encoded media payload (PCM audio frame or JPEG
// video frame) on the outbound channel. Ordering between payloads is send
// order. Returns an error once the session is closed.
func (c *Client) SendMedia(blob pcm.Blob) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("live: session closed")
	}
	c.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: blob.MIMEType, Data: blob.Data},
			},
		},
	}
	return c.writeJSON(msg)
}

// Events returns the inbound event channel. It is closed when the session
// ends for any reason; check [Client.Err] afterwards to distinguish a
// clean close from a transport failure.
func (c *Client) Events() <-chan Event { return c.events }

// Err returns the transport error that terminated the session, or nil
// after a clean close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close terminates the session and releases the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	c.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// receiveLoop reads server messages and dispatches them as events. It owns
// the events channel and closes it on exit.
func (c *Client) receiveLoop() {
	defer c.closeEvents()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			// A cancelled session context means Close ran; exit cleanly.
			if c.ctx.Err() != nil {
				return
			}
			c.setErr(&TransportError{Err: err})
			return
		}

		msg, err := decodeServerMessage(data)
		if err != nil {
			continue // skip malformed frames
		}
		c.dispatch(msg)
	}
}

// dispatch converts one decoded server message into zero or more events,
// preserving the order of parts within the message.
func (c *Client) dispatch(msg *serverMessage) {
	if msg.Error != nil {
		errText := msg.Error.Message
		if errText == "" {
			errText = "unknown error"
		}
		c.emit(ErrorEvent{Err: fmt.Errorf("live: server: %s", errText)})
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		c.emit(InterruptedEvent{})
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				c.emit(AudioEvent{Data: p.InlineData.Data})
			}
			if p.Text != "" {
				c.emit(TranscriptEvent{Source: "model", Text: p.Text})
			}
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emit(TranscriptEvent{Source: "user", Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emit(TranscriptEvent{Source: "model", Text: sc.OutputTranscription.Text})
	}

	if sc.TurnComplete {
		c.emit(TurnCompleteEvent{})
	}
}

// emit delivers an event, giving up when the session ends so a slow or
// departed consumer cannot wedge the receive loop.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// keepaliveLoop sends WebSocket pings to keep the connection alive.
func (c *Client) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

func (c *Client) closeEvents() {
	c.closeOnce.Do(func() {
		close(c.events)
	})
}

// writeJSON marshals v and writes it as a text WebSocket message. A mutex
// serialises writers so audio and video frames interleave whole-message.
func (c *Client) writeJSON(v any) error {
	data, err := encodeClientMessage(v)
	if err != nil {
		return fmt.Errorf("live: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}
