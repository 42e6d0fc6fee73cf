package proto

import (
	"bufio"

	"github.com/denzelpenzel/mcbridge/internal/engine"
)

// RequestParser ... Reads one command per call. Errors for which
// common.IsWrongRequest holds leave the stream in sync, any other error
// means the connection must be closed
type RequestParser interface {
	Parse() (*engine.Command, error)
}

// Responder ... Writes engine responses and errors back to the client
type Responder interface {
	Respond(res *engine.Response) error
	// Error answers a failed command, cmd may be nil when parsing failed early
	Error(cmd *engine.Command, err error) error
}

type Peeker interface {
	Peek(n int) ([]byte, error)
}

type Disambiguator interface {
	CanParse() (bool, error)
}

type Components interface {
	NewDisambiguator(p Peeker) Disambiguator
	NewRequestParser(r *bufio.Reader) RequestParser
	NewResponder(w *bufio.Writer) Responder
}
