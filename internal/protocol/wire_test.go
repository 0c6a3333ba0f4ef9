package protocol

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
)

func TestWriteThenReadAudioChunk(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	chunk := AudioChunk{Rate: 44100, Width: 2, Channels: 1, Audio: []byte{1, 2, 3, 4}}
	if err := w.WriteEvent(chunk.Event()); err != nil {
		t.Fatalf("write: %v", err)
	}

	line, _, _ := strings.Cut(buf.String(), "\n")
	if !strings.Contains(line, `"payload_length":4`) || !strings.Contains(line, `"data_length"`) {
		t.Fatalf("unexpected header %s", line)
	}

	ev, err := NewReader(&buf).ReadEvent()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != TypeAudioChunk {
		t.Fatalf("unexpected type %q", ev.Type)
	}
	if !bytes.Equal(ev.Payload, chunk.Audio) {
		t.Fatalf("payload mismatch: %v", ev.Payload)
	}
	if rate, _ := ev.Data["rate"].(float64); rate != 44100 {
		t.Fatalf("unexpected rate %v", ev.Data["rate"])
	}
}

func TestReadInlineAndTrailingData(t *testing.T) {
	data := `{"text":"Hello there."}`
	input := `{"type":"synthesize","data":{"voice":{"name":"F1"}},"data_length":` +
		strconv.Itoa(len(data)) + "}\n" + data
	ev, err := NewReader(strings.NewReader(input)).ReadEvent()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	in, err := Parse(ev)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	syn, ok := in.(Synthesize)
	if !ok {
		t.Fatalf("expected Synthesize, got %T", in)
	}
	if syn.Text != "Hello there." || syn.Voice == nil || syn.Voice.Name != "F1" {
		t.Fatalf("unexpected synthesize %+v", syn)
	}
}

func TestReadSkipsBlankLines(t *testing.T) {
	input := "\n\n" + `{"type":"describe"}` + "\n"
	ev, err := NewReader(strings.NewReader(input)).ReadEvent()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != TypeDescribe {
		t.Fatalf("unexpected type %q", ev.Type)
	}
}

func TestMalformedHeaderIsDecodeError(t *testing.T) {
	input := "{not json\n" + `{"type":"describe"}` + "\n"
	r := NewReader(strings.NewReader(input))

	_, err := r.ReadEvent()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}

	ev, err := r.ReadEvent()
	if err != nil {
		t.Fatalf("stream should stay usable: %v", err)
	}
	if ev.Type != TypeDescribe {
		t.Fatalf("unexpected type %q", ev.Type)
	}
}

func TestMalformedDataKeepsFraming(t *testing.T) {
	bad := `{"text":`
	input := `{"type":"synthesize-chunk","data_length":` + strconv.Itoa(len(bad)) + "}\n" + bad +
		`{"type":"synthesize-stop"}` + "\n"
	r := NewReader(strings.NewReader(input))

	_, err := r.ReadEvent()
	var de *DecodeError
	if !errors.As(err, &de) || de.Type != TypeSynthesizeChunk {
		t.Fatalf("expected DecodeError for synthesize-chunk, got %v", err)
	}
	ev, err := r.ReadEvent()
	if err != nil || ev.Type != TypeSynthesizeStop {
		t.Fatalf("expected synthesize-stop after bad data, got %v %v", ev.Type, err)
	}
}

func TestMistypedHeaderSkipsDeclaredBody(t *testing.T) {
	input := `{"type":"audio-chunk","data":"oops","payload_length":4}` + "\n" + "abcd" +
		`{"type":"describe"}` + "\n"
	r := NewReader(strings.NewReader(input))

	_, err := r.ReadEvent()
	var de *DecodeError
	if !errors.As(err, &de) || de.Type != TypeAudioChunk {
		t.Fatalf("expected DecodeError for audio-chunk, got %v", err)
	}
	ev, err := r.ReadEvent()
	if err != nil || ev.Type != TypeDescribe {
		t.Fatalf("expected describe after the skipped payload, got %v %v", ev.Type, err)
	}
}

func TestTruncatedPayloadIsTransportError(t *testing.T) {
	input := `{"type":"audio-chunk","payload_length":10}` + "\n" + "abc"
	_, err := NewReader(strings.NewReader(input)).ReadEvent()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		t.Fatal("truncation must not be reported as a decode error")
	}
}

func TestCleanCloseIsEOF(t *testing.T) {
	_, err := NewReader(strings.NewReader("")).ReadEvent()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestParseWrongFieldType(t *testing.T) {
	_, err := Parse(Event{Type: TypeSynthesizeChunk, Data: map[string]any{"text": 42.0}})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestParseUnknown(t *testing.T) {
	in, err := Parse(Event{Type: "transcribe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u, ok := in.(Unknown); !ok || u.Type != "transcribe" {
		t.Fatalf("expected Unknown, got %#v", in)
	}
}

func TestEmptyEventsHaveNoData(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteEvent(AudioStop{}.Event()); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "data_length") {
		t.Fatalf("audio-stop should carry no data: %s", buf.String())
	}
}
