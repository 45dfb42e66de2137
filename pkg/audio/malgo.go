package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// malgoContext implements [Context] on top of malgo (miniaudio).
type malgoContext struct {
	ctx *malgo.AllocatedContext
}

// NewContext initialises the platform audio backend.
func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) NewCapture(cfg Config, cb DataCallback) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb(s16ToFloat32(data))
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture device: %w", err)
	}
	return &malgoDevice{device: dev}, nil
}

func (m *malgoContext) NewPlayback(cfg Config, pull PullCallback) (PlaybackDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	var scratch []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			if len(scratch) < int(frameCount) {
				scratch = make([]float32, frameCount)
			}
			buf := scratch[:frameCount]
			pull(buf)
			float32ToS16(out, buf)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: init playback device: %w", err)
	}
	return &malgoDevice{device: dev}, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

// malgoDevice adapts *malgo.Device to the capture and playback interfaces.
// Stop and Close are idempotent: malgo tolerates repeated calls and the
// wrapper never re-dispatches after Uninit.
type malgoDevice struct {
	device *malgo.Device
	closed bool
}

func (d *malgoDevice) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("audio: start device: %w", err)
	}
	return nil
}

func (d *malgoDevice) Stop() {
	if d.closed {
		return
	}
	_ = d.device.Stop()
}

func (d *malgoDevice) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.device.Uninit()
}

// s16ToFloat32 converts little-endian int16 PCM to normalized float32.
// A trailing odd byte is ignored.
func s16ToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := range n {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}

// float32ToS16 writes samples as little-endian int16 PCM into out, which
// must hold at least len(samples)*2 bytes.
func float32ToS16(out []byte, samples []float32) {
	for i, s := range samples {
		f := float64(s) * 32768
		if f > 32767 {
			f = 32767
		} else if f < -32768 {
			f = -32768
		}
		v := int16(f)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
}
