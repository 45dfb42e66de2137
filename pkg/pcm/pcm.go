// Package pcm converts between normalized floating-point audio samples and
// the base64-encoded little-endian int16 PCM payloads used on the wire.
//
// All functions are pure and deterministic: encoding clamps out-of-range
// samples to [-1, 1] and a decode of an encode reproduces the input within
// quantization error (1/32768 per sample). Malformed payloads are rejected
// with a [DecodeError] rather than silently truncated.
package pcm

import (
	"encoding/base64"
	"fmt"
)

const (
	// scale maps the normalized sample range [-1, 1] onto int16. Encoding
	// and decoding share the same factor so a round trip stays within one
	// quantization step.
	scale = 32768

	// bytesPerSample is the wire size of one int16 PCM sample.
	bytesPerSample = 2
)

// MIMETypeJPEG tags an encoded video/screen frame on the wire.
const MIMETypeJPEG = "image/jpeg"

// AudioMIMEType returns the wire MIME type for PCM audio at the given
// sample rate, e.g. "audio/pcm;rate=16000".
func AudioMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// Blob is an encoded media payload ready for transport. Data is base64;
// MIMEType describes the contents. A Blob is immutable once constructed
// and owned solely by the caller that sends it.
type Blob struct {
	MIMEType string
	Data     string
}

// JPEGBlob wraps an already-encoded JPEG image as a wire Blob.
func JPEGBlob(jpeg []byte) Blob {
	return Blob{
		MIMEType: MIMETypeJPEG,
		Data:     base64.StdEncoding.EncodeToString(jpeg),
	}
}

// DecodeError reports a malformed inbound audio payload. Per-chunk decode
// failures are isolated: the chunk is dropped and the session continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pcm: decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pcm: decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode maps each sample linearly from [-1, 1] to int16, clamping
// out-of-range inputs, serializes the result little-endian, and returns
// the base64 payload tagged with the audio MIME type for rate.
func Encode(samples []float32, rate int) Blob {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		f := float64(s) * scale
		if f > 32767 {
			f = 32767
		} else if f < -32768 {
			f = -32768
		}
		v := int16(f)
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	return Blob{
		MIMEType: AudioMIMEType(rate),
		Data:     base64.StdEncoding.EncodeToString(buf),
	}
}

// Decode interprets a base64 payload as little-endian int16 PCM at srcRate,
// converts it back to normalized float32 samples, and resamples the result
// to dstRate. It returns a *DecodeError on invalid base64 or an odd byte
// count.
func Decode(data string, srcRate, dstRate int) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	samples, err := DecodeBytes(raw)
	if err != nil {
		return nil, err
	}
	return Resample(samples, srcRate, dstRate), nil
}

// DecodeBytes converts raw little-endian int16 PCM bytes to normalized
// float32 samples. An odd byte count is rejected with a *DecodeError.
func DecodeBytes(raw []byte) ([]float32, error) {
	if len(raw)%bytesPerSample != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d", len(raw))}
	}
	samples := make([]float32, len(raw)/bytesPerSample)
	for i := range samples {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match (or either is non-positive) the input
// is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// Duration returns the playback duration in seconds of n samples at rate.
func Duration(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate)
}
