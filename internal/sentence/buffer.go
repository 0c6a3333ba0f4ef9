package sentence

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinChars is the flush threshold used when none is configured.
const DefaultMinChars = 20

// Buffer joins sentences with single spaces until at least minChars
// characters are waiting.
type Buffer struct {
	minChars int
	text     strings.Builder
}

func NewBuffer(minChars int) *Buffer {
	if minChars < 0 {
		minChars = DefaultMinChars
	}
	return &Buffer{minChars: minChars}
}

func (b *Buffer) Add(sentence string) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteByte(' ')
	}
	b.text.WriteString(sentence)
}

// Ready reports whether the buffered text reached the flush threshold.
func (b *Buffer) Ready() bool {
	return b.text.Len() > 0 && utf8.RuneCountInString(b.text.String()) >= b.minChars
}

// Flush returns the buffered text and clears the buffer. The boolean is false
// when there was nothing but whitespace to flush.
func (b *Buffer) Flush() (string, bool) {
	text := strings.TrimSpace(b.text.String())
	b.text.Reset()
	return text, text != ""
}

func (b *Buffer) Len() int {
	return b.text.Len()
}
