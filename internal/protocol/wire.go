package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Version is advertised in the header of every event written.
const Version = "1.7.2"

// MaxHeaderBytes bounds a single header line.
const MaxHeaderBytes = 1 << 20

// Event is one framed message: a JSON header line, optional JSON data and an
// optional binary payload.
type Event struct {
	Type    string
	Data    map[string]any
	Payload []byte
}

type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// DecodeError reports a malformed event whose framing was still consumed, so
// the stream can keep being read.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode event: %v", e.Err)
	}
	return fmt.Sprintf("decode %s event: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrHeaderTooLong is returned when a header line exceeds MaxHeaderBytes.
var ErrHeaderTooLong = errors.New("event header too long")

// Reader decodes events from a byte stream.
type Reader struct {
	r *bufio.Reader
	// OnHeader, when set, observes every raw header line.
	OnHeader func(line []byte)
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadEvent returns the next event. Transport failures are returned as-is
// (io.EOF on a clean close, io.ErrUnexpectedEOF on truncation); malformed
// JSON is returned as *DecodeError.
func (r *Reader) ReadEvent() (Event, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return Event{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if r.OnHeader != nil {
			r.OnHeader(line)
		}

		var h header
		if err := json.Unmarshal(line, &h); err != nil {
			// A well-formed header with a mistyped field still declares its
			// lengths; skip the body so the next header lines up. Syntax errors
			// leave the lengths unknown.
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && h.DataLength >= 0 && h.PayloadLength >= 0 {
				if _, err := io.CopyN(io.Discard, r.r, int64(h.DataLength)+int64(h.PayloadLength)); err != nil {
					return Event{}, truncated(err)
				}
			}
			return Event{}, &DecodeError{Type: h.Type, Err: fmt.Errorf("header: %w", err)}
		}
		if h.DataLength < 0 || h.PayloadLength < 0 {
			return Event{}, &DecodeError{Type: h.Type, Err: errors.New("negative length")}
		}

		data := h.Data
		if data == nil {
			data = make(map[string]any)
		}

		var dataErr error
		if h.DataLength > 0 {
			raw := make([]byte, h.DataLength)
			if _, err := io.ReadFull(r.r, raw); err != nil {
				return Event{}, truncated(err)
			}
			var extra map[string]any
			if err := json.Unmarshal(raw, &extra); err != nil {
				dataErr = fmt.Errorf("data: %w", err)
			}
			for k, v := range extra {
				data[k] = v
			}
		}

		var payload []byte
		if h.PayloadLength > 0 {
			payload = make([]byte, h.PayloadLength)
			if _, err := io.ReadFull(r.r, payload); err != nil {
				return Event{}, truncated(err)
			}
		}

		if dataErr != nil {
			return Event{}, &DecodeError{Type: h.Type, Err: dataErr}
		}
		if h.Type == "" {
			return Event{}, &DecodeError{Err: errors.New("missing event type")}
		}
		return Event{Type: h.Type, Data: data, Payload: payload}, nil
	}
}

func (r *Reader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.r.ReadLine()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxHeaderBytes {
			return nil, ErrHeaderTooLong
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Writer encodes events onto a byte stream. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) WriteEvent(ev Event) error {
	h := header{Type: ev.Type, Version: Version}

	var data []byte
	if len(ev.Data) > 0 {
		encoded, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("encode %s data: %w", ev.Type, err)
		}
		data = encoded
		h.DataLength = len(data)
	}
	h.PayloadLength = len(ev.Payload)

	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode %s header: %w", ev.Type, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if _, err := w.w.Write(ev.Payload); err != nil {
		return err
	}
	return w.w.Flush()
}
