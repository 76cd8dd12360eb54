package audio

import (
	"bytes"
	"fmt"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeFrame extracts signed 16-bit PCM samples from a WAV-framed payload.
// Edge devices ship capture fragments as small standalone WAV files.
func DecodeFrame(payload []byte) ([]int16, error) {
	decoder := wav.NewDecoder(bytes.NewReader(payload))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav frame")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav frame: %w", err)
	}
	if decoder.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", decoder.BitDepth)
	}
	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	return samples, nil
}

// EncodeFrame renders PCM samples as a standalone WAV payload. Used by the
// local VAD probe and by tests to synthesize device frames.
func EncodeFrame(samples []int16, sampleRate, channels int) ([]byte, error) {
	var out seekableBuffer
	enc := wav.NewEncoder(&out, sampleRate, 16, channels, 1)
	buf := &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.Bytes(), nil
}

// Bytes reinterprets samples as little-endian byte pairs for engines that
// consume raw PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// seekableBuffer adapts an in-memory buffer to the WriteSeeker the wav
// encoder requires for patching up the header on Close.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.data) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case 0:
		next = int(offset)
	case 1:
		next = b.pos + int(offset)
	case 2:
		next = len(b.data) + int(offset)
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	b.pos = next
	return int64(next), nil
}

func (b *seekableBuffer) Bytes() []byte {
	return b.data
}
