package protocol

import (
	"encoding/json"
	"fmt"
)

// Event type names on the wire.
const (
	TypeDescribe          = "describe"
	TypeInfo              = "info"
	TypeSynthesize        = "synthesize"
	TypeSynthesizeStart   = "synthesize-start"
	TypeSynthesizeChunk   = "synthesize-chunk"
	TypeSynthesizeStop    = "synthesize-stop"
	TypeSynthesizeStopped = "synthesize-stopped"
	TypeAudioStart        = "audio-start"
	TypeAudioChunk        = "audio-chunk"
	TypeAudioStop         = "audio-stop"
	TypeError             = "error"
)

// Inbound is an event a client sends to the server. The set of
// implementations is closed: Describe, Synthesize, SynthesizeStart,
// SynthesizeChunk, SynthesizeStop and Unknown.
type Inbound interface {
	inbound()
}

// Outbound is an event the server sends to a client.
type Outbound interface {
	Event() Event
}

// VoiceSelection names the voice and language a client asks for.
type VoiceSelection struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	Speaker  string `json:"speaker,omitempty"`
}

type Describe struct{}

type Synthesize struct {
	Text  string          `json:"text"`
	Voice *VoiceSelection `json:"voice,omitempty"`
}

type SynthesizeStart struct {
	Voice *VoiceSelection `json:"voice,omitempty"`
}

type SynthesizeChunk struct {
	Text string `json:"text"`
}

type SynthesizeStop struct{}

// Unknown carries an event type the server does not handle.
type Unknown struct {
	Type string
}

func (Describe) inbound()        {}
func (Synthesize) inbound()      {}
func (SynthesizeStart) inbound() {}
func (SynthesizeChunk) inbound() {}
func (SynthesizeStop) inbound()  {}
func (Unknown) inbound()         {}

// Parse converts a wire event into its typed form.
func Parse(ev Event) (Inbound, error) {
	switch ev.Type {
	case TypeDescribe:
		return Describe{}, nil
	case TypeSynthesize:
		var msg Synthesize
		if err := decodeData(ev, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSynthesizeStart:
		var msg SynthesizeStart
		if err := decodeData(ev, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSynthesizeChunk:
		var msg SynthesizeChunk
		if err := decodeData(ev, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeSynthesizeStop:
		return SynthesizeStop{}, nil
	default:
		return Unknown{Type: ev.Type}, nil
	}
}

func decodeData(ev Event, target any) error {
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return &DecodeError{Type: ev.Type, Err: err}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &DecodeError{Type: ev.Type, Err: err}
	}
	return nil
}

func encodeData(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode %T: %v", v, err))
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		panic(fmt.Sprintf("protocol: encode %T: %v", v, err))
	}
	return data
}

type AudioStart struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

func (a AudioStart) Event() Event {
	return Event{Type: TypeAudioStart, Data: encodeData(a)}
}

type AudioChunk struct {
	Rate     int    `json:"rate"`
	Width    int    `json:"width"`
	Channels int    `json:"channels"`
	Audio    []byte `json:"-"`
}

func (a AudioChunk) Event() Event {
	return Event{Type: TypeAudioChunk, Data: encodeData(a), Payload: a.Audio}
}

type AudioStop struct{}

func (AudioStop) Event() Event { return Event{Type: TypeAudioStop} }

type SynthesizeStopped struct{}

func (SynthesizeStopped) Event() Event { return Event{Type: TypeSynthesizeStopped} }

type Error struct {
	Text string `json:"text"`
	Code string `json:"code,omitempty"`
}

func (e Error) Event() Event {
	return Event{Type: TypeError, Data: encodeData(e)}
}

type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type TTSVoice struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	Languages   []string    `json:"languages"`
}

type TTSProgram struct {
	Name                        string      `json:"name"`
	Description                 string      `json:"description,omitempty"`
	Attribution                 Attribution `json:"attribution"`
	Installed                   bool        `json:"installed"`
	Version                     string      `json:"version,omitempty"`
	Voices                      []TTSVoice  `json:"voices"`
	SupportsSynthesizeStreaming bool        `json:"supports_synthesize_streaming"`
}

// Info is the capability descriptor sent in reply to Describe.
type Info struct {
	TTS []TTSProgram `json:"tts"`
}

func (i Info) Event() Event {
	return Event{Type: TypeInfo, Data: encodeData(i)}
}
