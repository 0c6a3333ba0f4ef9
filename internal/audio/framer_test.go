package audio

import (
	"bytes"
	"testing"
)

func TestFrameSplitsAndPreservesOrder(t *testing.T) {
	pcm := make([]byte, 5000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	chunks := NewFramer(DefaultChunkBytes).Frame(Mono16(44100), pcm)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantSizes := []int{2048, 2048, 904}
	var joined []byte
	for i, c := range chunks {
		if len(c.Audio) != wantSizes[i] {
			t.Errorf("chunk %d: expected %d bytes, got %d", i, wantSizes[i], len(c.Audio))
		}
		if c.Rate != 44100 || c.Width != 2 || c.Channels != 1 {
			t.Errorf("chunk %d: unexpected format %d/%d/%d", i, c.Rate, c.Width, c.Channels)
		}
		joined = append(joined, c.Audio...)
	}
	if !bytes.Equal(joined, pcm) {
		t.Fatal("concatenated chunks differ from input")
	}
}

func TestFrameEmpty(t *testing.T) {
	if chunks := NewFramer(0).Frame(Mono16(22050), nil); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestFrameExactMultiple(t *testing.T) {
	chunks := NewFramer(4).Frame(Mono16(16000), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
}

func TestFormatStart(t *testing.T) {
	start := Mono16(44100).Start()
	if start.Rate != 44100 || start.Width != 2 || start.Channels != 1 {
		t.Fatalf("unexpected audio start %+v", start)
	}
}
