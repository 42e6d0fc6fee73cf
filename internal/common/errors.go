package common

import (
	"errors"
)

var (
	// ErrUnknownCmd ... the verb could not be resolved to an operation
	ErrUnknownCmd = errors.New("ERROR")

	ErrBadRequest   = errors.New("CLIENT_ERROR bad command line format")
	ErrBadDataChunk = errors.New("CLIENT_ERROR bad data chunk")
	ErrBadExptime   = errors.New("CLIENT_ERROR invalid exptime argument")
	ErrBadDelta     = errors.New("CLIENT_ERROR invalid numeric delta argument")
	ErrKeyTooLong   = errors.New("CLIENT_ERROR key too long")

	ErrValueTooBig = errors.New("SERVER_ERROR object too large for cache")
	ErrNonNumeric  = errors.New("CLIENT_ERROR cannot increment or decrement non-numeric value")

	// ErrMalformedElement ... binary element decoding ran past a declared length
	// or found inconsistent fields
	ErrMalformedElement = errors.New("malformed cache element")

	// ErrContention ... a version-checked update kept losing to concurrent writers
	ErrContention = errors.New("SERVER_ERROR too much contention on key")

	// ErrBackendUnavailable ... the storage backend is refusing calls
	ErrBackendUnavailable = errors.New("SERVER_ERROR backend unavailable")

	ErrInternal = errors.New("SERVER_ERROR internal error")
)

var appErrors = []error{
	ErrUnknownCmd,
	ErrBadRequest,
	ErrBadDataChunk,
	ErrBadExptime,
	ErrBadDelta,
	ErrKeyTooLong,
	ErrValueTooBig,
	ErrNonNumeric,
	ErrContention,
	ErrBackendUnavailable,
}

// IsAppError ... Errors that are answered on the connection without closing it
func IsAppError(err error) bool {
	for _, e := range appErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// Sentinel ... The app error wrapped by err, nil if there is none
func Sentinel(err error) error {
	for _, e := range appErrors {
		if errors.Is(err, e) {
			return e
		}
	}
	return nil
}

// IsWrongRequest ... Errors produced while parsing a request line
func IsWrongRequest(err error) bool {
	return errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrBadDataChunk) ||
		errors.Is(err, ErrBadExptime) ||
		errors.Is(err, ErrBadDelta) ||
		errors.Is(err, ErrKeyTooLong) ||
		errors.Is(err, ErrValueTooBig)
}

// IsClientFault ... App errors caused by the request rather than the backend
func IsClientFault(err error) bool {
	return IsWrongRequest(err) || errors.Is(err, ErrNonNumeric) || errors.Is(err, ErrUnknownCmd)
}

// IsMiss ... Client side helper, the server answered with a miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// ErrMiss ... Returned by client helpers for NOT_FOUND / NOT_STORED / empty gets
var ErrMiss = errors.New("cache miss")
