package tts

import (
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

const (
	programName        = "Supertonic"
	programDescription = "Supertonic V2 Local"
)

var (
	programAttribution = protocol.Attribution{Name: "Supertone", URL: "https://huggingface.co/Supertone/supertonic"}
	voiceAttribution   = protocol.Attribution{Name: "Supertone", URL: "https://github.com/supertone-inc/supertonic-py"}
)

// Describe builds the info descriptor returned to describe requests.
func Describe(catalog Catalog, version string, streaming bool) protocol.Info {
	languages := config.SupportedLanguages()
	voices := make([]protocol.TTSVoice, 0, len(catalog.voices))
	for _, id := range catalog.voices {
		voices = append(voices, protocol.TTSVoice{
			Name:        id,
			Description: VoiceLabel(id),
			Attribution: voiceAttribution,
			Installed:   true,
			Version:     version,
			Languages:   languages,
		})
	}
	return protocol.Info{TTS: []protocol.TTSProgram{{
		Name:                        programName,
		Description:                 programDescription,
		Attribution:                 programAttribution,
		Installed:                   true,
		Version:                     version,
		Voices:                      voices,
		SupportsSynthesizeStreaming: streaming,
	}}}
}
