package session

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

// Error codes sent in error events.
const (
	CodeProtocol = "protocol"
	CodeEngine   = "engine"
	CodeSession  = "session"
)

// transportError marks a failed write to the client.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "write event: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("internal error: %v", e.value) }

// errorCode maps err to the coarse kind sent to clients. Anything not
// recognised as a protocol or engine fault is reported as a session fault.
func errorCode(err error) string {
	var decodeErr *protocol.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return CodeProtocol
	case errors.Is(err, tts.ErrNotLoaded), errors.Is(err, tts.ErrWorkerClosed):
		return CodeEngine
	default:
		return CodeSession
	}
}
