// Package codec implements §4.1 CodecG711: μ-law/A-law ⇄ linear PCM
// conversion, built on top of github.com/zaf/g711's tables with the
// saturating-arithmetic wrapper the spec requires on top.
package codec

import "github.com/zaf/g711"

// maxSample/minSample are the G.711-representable int16 range; samples
// outside this range are clamped (saturated) before encoding rather than
// wrapping, per §4.1.
const (
	maxSample int16 = 32635
	minSample int16 = -32635
)

func clamp(x int16) int16 {
	switch {
	case x > maxSample:
		return maxSample
	case x < minSample:
		return minSample
	default:
		return x
	}
}

// MulawDecode decodes a single μ-law byte to a linear PCM sample.
func MulawDecode(b byte) int16 {
	out := g711.DecodeUlaw([]byte{b})
	if len(out) == 0 {
		return 0
	}
	return out[0]
}

// MulawEncode encodes one linear PCM sample to μ-law, saturating first.
func MulawEncode(x int16) byte {
	out := g711.EncodeUlaw([]int16{clamp(x)})
	if len(out) == 0 {
		return 0xFF
	}
	return out[0]
}

// AlawDecode decodes a single A-law byte to a linear PCM sample.
func AlawDecode(b byte) int16 {
	out := g711.DecodeAlaw([]byte{b})
	if len(out) == 0 {
		return 0
	}
	return out[0]
}

// AlawEncode encodes one linear PCM sample to A-law, saturating first.
func AlawEncode(x int16) byte {
	out := g711.EncodeAlaw([]int16{clamp(x)})
	if len(out) == 0 {
		return 0xD5
	}
	return out[0]
}

// DecodeMulawBuffer bulk-decodes a μ-law byte buffer into linear PCM samples.
func DecodeMulawBuffer(buf []byte) []int16 {
	return g711.DecodeUlaw(buf)
}

// EncodeMulawBuffer bulk-encodes linear PCM samples to μ-law, saturating
// every sample first.
func EncodeMulawBuffer(samples []int16) []byte {
	clamped := make([]int16, len(samples))
	for i, s := range samples {
		clamped[i] = clamp(s)
	}
	return g711.EncodeUlaw(clamped)
}

// DecodeAlawBuffer bulk-decodes an A-law byte buffer into linear PCM samples.
func DecodeAlawBuffer(buf []byte) []int16 {
	return g711.DecodeAlaw(buf)
}

// EncodeAlawBuffer bulk-encodes linear PCM samples to A-law, saturating
// every sample first.
func EncodeAlawBuffer(samples []int16) []byte {
	clamped := make([]int16, len(samples))
	for i, s := range samples {
		clamped[i] = clamp(s)
	}
	return g711.EncodeAlaw(clamped)
}

// PCM16ToBytes serializes linear PCM samples to little-endian bytes, the
// wire shape speech services expect (LINEAR16 / WAV PCM).
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BytesToPCM16 parses little-endian PCM16 bytes into samples. Trailing odd
// byte, if any, is dropped.
func BytesToPCM16(buf []byte) []int16 {
	n := len(buf) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(buf[2*i]) | uint16(buf[2*i+1])<<8)
	}
	return out
}
