package live

// Event is an inbound session event. The concrete types mirror the wire
// protocol's tagged union: exactly one kind per server message field, and
// events are delivered in arrival order on a single channel so consumers
// keep FIFO dispatch without locking.
type Event interface {
	isEvent()
}

// TranscriptEvent carries a transcription fragment. Source is "model" for
// output transcription (the text form of synthesized speech) and "user"
// for recognised input speech.
type TranscriptEvent struct {
	Source string
	Text   string
}

// AudioEvent carries one base64-encoded PCM chunk of synthesized response
// audio. The payload stays encoded here; decoding happens at the playback
// edge so malformed chunks can be dropped without disturbing dispatch.
type AudioEvent struct {
	Data string
}

// InterruptedEvent signals barge-in: the user started speaking while
// response audio was still playing. All scheduled playback must be
// flushed immediately.
type InterruptedEvent struct{}

// TurnCompleteEvent signals that the model finished its response turn.
type TurnCompleteEvent struct{}

// ErrorEvent carries a non-fatal error reported by the remote service.
type ErrorEvent struct {
	Err error
}

func (TranscriptEvent) isEvent()   {}
func (AudioEvent) isEvent()        {}
func (InterruptedEvent) isEvent()  {}
func (TurnCompleteEvent) isEvent() {}
func (ErrorEvent) isEvent()        {}
