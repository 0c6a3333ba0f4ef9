// Package audio slices synthesized PCM into protocol audio chunks.
package audio

import "github.com/loqalabs/loqa-tts/internal/protocol"

// DefaultChunkBytes is the largest payload carried by one audio chunk.
const DefaultChunkBytes = 2048

// Format describes raw PCM audio. Width is in bytes per sample.
type Format struct {
	Rate     int
	Width    int
	Channels int
}

// Mono16 is signed 16-bit little-endian mono audio at rate.
func Mono16(rate int) Format {
	return Format{Rate: rate, Width: 2, Channels: 1}
}

// Start returns the event announcing audio in this format.
func (f Format) Start() protocol.AudioStart {
	return protocol.AudioStart{Rate: f.Rate, Width: f.Width, Channels: f.Channels}
}

// Framer splits PCM into consecutive chunks of at most chunkBytes.
type Framer struct {
	chunkBytes int
}

func NewFramer(chunkBytes int) Framer {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	return Framer{chunkBytes: chunkBytes}
}

// Frame returns pcm as ordered audio chunks. Empty input yields no chunks.
// Chunks alias pcm.
func (fr Framer) Frame(format Format, pcm []byte) []protocol.AudioChunk {
	if len(pcm) == 0 {
		return nil
	}
	chunks := make([]protocol.AudioChunk, 0, (len(pcm)+fr.chunkBytes-1)/fr.chunkBytes)
	for offset := 0; offset < len(pcm); offset += fr.chunkBytes {
		end := min(offset+fr.chunkBytes, len(pcm))
		chunks = append(chunks, protocol.AudioChunk{
			Rate:     format.Rate,
			Width:    format.Width,
			Channels: format.Channels,
			Audio:    pcm[offset:end],
		})
	}
	return chunks
}
