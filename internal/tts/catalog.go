package tts

import (
	"slices"
	"strings"
)

// Catalog is the read-only list of voices an engine offers.
type Catalog struct {
	voices       []string
	defaultVoice string
}

func NewCatalog(voices []string, defaultVoice string) Catalog {
	return Catalog{voices: slices.Clone(voices), defaultVoice: defaultVoice}
}

func (c Catalog) Voices() []string {
	return slices.Clone(c.voices)
}

func (c Catalog) Contains(voice string) bool {
	return voice != "" && slices.Contains(c.voices, voice)
}

// Resolve picks the voice to synthesize with: the requested voice when
// installed, then the configured default, then the first catalog entry.
func (c Catalog) Resolve(requested string) string {
	switch {
	case c.Contains(requested):
		return requested
	case c.Contains(c.defaultVoice):
		return c.defaultVoice
	case len(c.voices) > 0:
		return c.voices[0]
	default:
		return FallbackVoice
	}
}

// VoiceLabel renders M<n> and F<n> ids as "Male n" and "Female n".
func VoiceLabel(id string) string {
	if len(id) < 2 || !isDigits(id[1:]) {
		return id
	}
	switch id[0] {
	case 'M':
		return "Male " + id[1:]
	case 'F':
		return "Female " + id[1:]
	}
	return id
}

func isDigits(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}
