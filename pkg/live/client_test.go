package live_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxline/voxline/pkg/live"
	"github.com/voxline/voxline/pkg/pcm"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server. The handler receives
// the accepted *websocket.Conn; the server is closed when the test ends.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readRaw reads one WebSocket text frame as a string.
func readRaw(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readRaw: %v", err)
	}
	return string(data)
}

// writeRaw sends a raw JSON string as a text frame.
func writeRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Logf("writeRaw: %v (may be expected on close)", err)
	}
}

// collectEvents drains up to n events or fails on timeout.
func collectEvents(t *testing.T, c *live.Client, n int) []live.Event {
	t.Helper()
	var out []live.Event
	timeout := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events channel closed after %d events, want %d (err: %v)", len(out), n, c.Err())
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestDialSendsSetup(t *testing.T) {
	t.Parallel()

	setupCh := make(chan string, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q, want %q", got, "test-key")
		}
		setupCh <- readRaw(t, conn)
		<-r.Context().Done()
	})

	c, err := live.Dial(context.Background(), live.Config{
		APIKey:       "test-key",
		BaseURL:      wsURL(srv),
		Instructions: "You are a helpful voice assistant.",
		Voice:        "Aoede",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	setup := <-setupCh
	for _, want := range []string{
		`"model":"models/` + live.DefaultModel + `"`,
		`"responseModalities":["AUDIO"]`,
		`"outputAudioTranscription":{}`,
		`"You are a helpful voice assistant."`,
		`"voiceName":"Aoede"`,
	} {
		if !strings.Contains(setup, want) {
			t.Errorf("setup message missing %s\nsetup: %s", want, setup)
		}
	}
}

func TestDialRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := live.Dial(context.Background(), live.Config{})
	if err == nil {
		t.Fatal("Dial with empty API key: want error")
	}
}

func TestSendMediaMultiplexesAudioAndVideo(t *testing.T) {
	t.Parallel()

	frames := make(chan string, 2)
	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		readRaw(t, conn) // setup
		frames <- readRaw(t, conn)
		frames <- readRaw(t, conn)
		<-r.Context().Done()
	})

	c, err := live.Dial(context.Background(), live.Config{APIKey: "k", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	audio := pcm.Encode([]float32{0, 0.5, -0.5}, 16000)
	if err := c.SendMedia(audio); err != nil {
		t.Fatalf("SendMedia(audio): %v", err)
	}
	video := pcm.JPEGBlob([]byte{0xFF, 0xD8})
	if err := c.SendMedia(video); err != nil {
		t.Fatalf("SendMedia(video): %v", err)
	}

	first, second := <-frames, <-frames
	if !strings.Contains(first, `"mimeType":"audio/pcm;rate=16000"`) {
		t.Errorf("first frame is not the audio chunk: %s", first)
	}
	if !strings.Contains(second, `"mimeType":"image/jpeg"`) {
		t.Errorf("second frame is not the video chunk: %s", second)
	}
}

func TestInboundEventDispatch(t *testing.T) {
	t.Parallel()

	chunk := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00, 0x02, 0x00})
	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		readRaw(t, conn) // setup
		writeRaw(t, conn, `{"setupComplete":{}}`)
		writeRaw(t, conn, `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"`+chunk+`"}}]}}}`)
		writeRaw(t, conn, `{"serverContent":{"outputTranscription":{"text":"hello there"}}}`)
		writeRaw(t, conn, `{"serverContent":{"interrupted":true}}`)
		writeRaw(t, conn, `{"serverContent":{"turnComplete":true}}`)
		<-r.Context().Done()
	})

	c, err := live.Dial(context.Background(), live.Config{APIKey: "k", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	events := collectEvents(t, c, 4)

	audio, ok := events[0].(live.AudioEvent)
	if !ok {
		t.Fatalf("events[0] = %T, want AudioEvent", events[0])
	}
	if audio.Data != chunk {
		t.Errorf("audio data = %q, want %q", audio.Data, chunk)
	}

	tr, ok := events[1].(live.TranscriptEvent)
	if !ok {
		t.Fatalf("events[1] = %T, want TranscriptEvent", events[1])
	}
	if tr.Source != "model" || tr.Text != "hello there" {
		t.Errorf("transcript = %+v, want model/hello there", tr)
	}

	if _, ok := events[2].(live.InterruptedEvent); !ok {
		t.Errorf("events[2] = %T, want InterruptedEvent", events[2])
	}
	if _, ok := events[3].(live.TurnCompleteEvent); !ok {
		t.Errorf("events[3] = %T, want TurnCompleteEvent", events[3])
	}
}

func TestInputTranscriptionBecomesUserEvent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		readRaw(t, conn) // setup
		writeRaw(t, conn, `{"serverContent":{"inputTranscription":{"text":"what time is it"}}}`)
		<-r.Context().Done()
	})

	c, err := live.Dial(context.Background(), live.Config{APIKey: "k", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	events := collectEvents(t, c, 1)
	tr, ok := events[0].(live.TranscriptEvent)
	if !ok || tr.Source != "user" {
		t.Fatalf("got %#v, want user TranscriptEvent", events[0])
	}
}

func TestServerErrorEvent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		readRaw(t, conn) // setup
		writeRaw(t, conn, `{"error":{"code":8,"message":"quota exceeded"}}`)
		<-r.Context().Done()
	})

	c, err := live.Dial(context.Background(), live.Config{APIKey: "k", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	events := collectEvents(t, c, 1)
	ee, ok := events[0].(live.ErrorEvent)
	if !ok {
		t.Fatalf("events[0] = %T, want ErrorEvent", events[0])
	}
	if !strings.Contains(ee.Err.Error(), "quota exceeded") {
		t.Errorf("error = %v, want to mention quota exceeded", ee.Err)
	}
}

func TestTransportFailureClosesEventsWithErr(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		readRaw(t, conn) // setup
		conn.Close(websocket.StatusInternalError, "boom")
	})

	c, err := live.Dial(context.Background(), live.Config{APIKey: "k", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case _, ok := <-c.Events():
		if ok {
			t.Fatal("got an event, want closed channel")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("events channel did not close after transport failure")
	}

	if c.Err() == nil {
		t.Error("Err() = nil after transport failure, want *TransportError")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		readRaw(t, conn) // setup
		<-r.Context().Done()
	})

	c, err := live.Dial(context.Background(), live.Config{APIKey: "k", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if err := c.SendMedia(pcm.Encode([]float32{0}, 16000)); err == nil {
		t.Error("SendMedia after Close: want error")
	}

	// Events drains and closes cleanly with no transport error recorded.
	for range c.Events() {
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() after clean close = %v, want nil", err)
	}
}
