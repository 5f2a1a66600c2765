package codec

import "testing"

func TestMulawRoundTripWithinQuantizationBound(t *testing.T) {
	for x := -32000; x <= 32000; x += 137 {
		sample := int16(x)
		once := MulawDecode(MulawEncode(sample))
		twice := MulawDecode(MulawEncode(once))
		if once != twice {
			t.Fatalf("decode(encode(.)) not idempotent at %d: once=%d twice=%d", sample, once, twice)
		}
	}
}

func TestAlawRoundTripWithinQuantizationBound(t *testing.T) {
	for x := -32000; x <= 32000; x += 211 {
		sample := int16(x)
		once := AlawDecode(AlawEncode(sample))
		twice := AlawDecode(AlawEncode(once))
		if once != twice {
			t.Fatalf("decode(encode(.)) not idempotent at %d: once=%d twice=%d", sample, once, twice)
		}
	}
}

func TestEncodeSaturatesOutOfRangeSamples(t *testing.T) {
	// Values beyond ±32635 must saturate, not wrap — encoding the extremes
	// should equal encoding the clamp boundary.
	if MulawEncode(32767) != MulawEncode(maxSample) {
		t.Fatal("expected saturation at positive extreme")
	}
	if MulawEncode(-32768) != MulawEncode(minSample) {
		t.Fatal("expected saturation at negative extreme")
	}
}

func TestPCM16ByteRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32000, -32000, 12345, -12345}
	got := BytesToPCM16(PCM16ToBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d: got %d want %d", i, got[i], samples[i])
		}
	}
}

func TestBulkBuffersMatchPerSample(t *testing.T) {
	samples := []int16{100, -100, 5000, -5000, 32700, -32700}
	bulk := EncodeMulawBuffer(samples)
	for i, s := range samples {
		if bulk[i] != MulawEncode(s) {
			t.Fatalf("bulk encode mismatch at %d", i)
		}
	}
	decoded := DecodeMulawBuffer(bulk)
	for i := range bulk {
		if decoded[i] != MulawDecode(bulk[i]) {
			t.Fatalf("bulk decode mismatch at %d", i)
		}
	}
}
