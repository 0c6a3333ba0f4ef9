// Package sentence turns incrementally streamed text into sentences and
// coalesces short sentences into synthesis-sized segments.
package sentence

import (
	"strings"
	"sync"

	"gopkg.in/neurosnap/sentences.v1"
	"gopkg.in/neurosnap/sentences.v1/english"
)

// SplitFunc splits text into sentences. Each returned sentence must appear in
// text, in order.
type SplitFunc func(text string) []string

var (
	punktOnce sync.Once
	punktMu   sync.Mutex
	punkt     *sentences.DefaultSentenceTokenizer
	punktErr  error
)

// englishTokenizer loads the punkt English model on first use. Every split
// afterwards reuses it.
func englishTokenizer() (*sentences.DefaultSentenceTokenizer, error) {
	punktOnce.Do(func() {
		punkt, punktErr = english.NewSentenceTokenizer(nil)
	})
	return punkt, punktErr
}

// PunktSplit detects sentence boundaries with the punkt English model. If the
// model cannot be loaded the whole text is one sentence.
func PunktSplit(text string) []string {
	tok, err := englishTokenizer()
	if err != nil {
		return []string{text}
	}
	punktMu.Lock()
	sents := tok.Tokenize(text)
	punktMu.Unlock()

	out := make([]string, 0, len(sents))
	for _, s := range sents {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Segmenter accumulates text fragments and releases sentences once a
// following sentence has started, so the last, possibly incomplete, sentence
// is always held back until more text or Finish.
type Segmenter struct {
	split   SplitFunc
	pending string
}

func NewSegmenter(split SplitFunc) *Segmenter {
	if split == nil {
		split = PunktSplit
	}
	return &Segmenter{split: split}
}

// AddChunk appends fragment and returns the sentences it completed.
func (s *Segmenter) AddChunk(fragment string) []string {
	if fragment == "" {
		return nil
	}
	s.pending += fragment

	parts := s.split(s.pending)
	if len(parts) < 2 {
		return nil
	}

	var out []string
	cursor := 0
	for _, part := range parts[:len(parts)-1] {
		idx := strings.Index(s.pending[cursor:], part)
		if idx < 0 {
			break
		}
		end := cursor + idx + len(part)
		if sentence := strings.TrimSpace(s.pending[cursor:end]); sentence != "" {
			out = append(out, sentence)
		}
		cursor = end
	}
	s.pending = s.pending[cursor:]
	return out
}

// Finish returns whatever text is still pending and resets the segmenter.
func (s *Segmenter) Finish() (string, bool) {
	rest := strings.TrimSpace(s.pending)
	s.pending = ""
	return rest, rest != ""
}

// Pending reports the number of bytes held back.
func (s *Segmenter) Pending() int {
	return len(s.pending)
}
