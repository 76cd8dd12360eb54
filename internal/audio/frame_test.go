package audio

import "testing"

func TestEncodeDecodeFrame(t *testing.T) {
	samples := []int16{0, 1200, -1200, 32000, -32000}
	payload, err := EncodeFrame(samples, 16000, 1)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	decoded, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, err := DecodeFrame([]byte("not a wav payload")); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}

func TestBytesLittleEndian(t *testing.T) {
	out := Bytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d: expected %#x, got %#x", i, want[i], out[i])
		}
	}
}
