// Package element holds the value object stored for every cache key.
//
// An Element never changes after construction. The payload is copied in on
// New and copied out by Data, so a caller can not reach the bytes a backend
// holds. Merge operations (Append, Prepend, IncrDecr) return a replacement.
package element

import (
	"bytes"
	"io"
)

// Element ... One cache entry
type Element struct {
	key       string
	flags     uint32
	expire    int64
	casUnique uint64
	data      []byte
}

// New ... Builds an element owning a private copy of data.
// expire is a TTL in milliseconds, <= 0 never expires
func New(key string, flags uint32, expire int64, casUnique uint64, data []byte) *Element {
	return &Element{
		key:       key,
		flags:     flags,
		expire:    expire,
		casUnique: casUnique,
		data:      bytes.Clone(nonNil(data)),
	}
}

// newOwned takes ownership of data without copying
func newOwned(key string, flags uint32, expire int64, casUnique uint64, data []byte) *Element {
	return &Element{
		key:       key,
		flags:     flags,
		expire:    expire,
		casUnique: casUnique,
		data:      nonNil(data),
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (e *Element) Key() string { return e.key }

func (e *Element) Flags() uint32 { return e.flags }

// Expire ... TTL in milliseconds as supplied by the client
func (e *Element) Expire() int64 { return e.expire }

func (e *Element) CasUnique() uint64 { return e.casUnique }

// Size ... Payload length in bytes
func (e *Element) Size() int { return len(e.data) }

// Data ... A copy of the payload
func (e *Element) Data() []byte {
	return bytes.Clone(e.data)
}

// WriteData ... Streams the payload without copying it
func (e *Element) WriteData(w io.Writer) (int, error) {
	return w.Write(e.data)
}

// Never ... true when the element has no expiry
func (e *Element) Never() bool { return e.expire <= 0 }

// WithExpire ... Same entry with a different TTL
func (e *Element) WithExpire(expire int64) *Element {
	return newOwned(e.key, e.flags, expire, e.casUnique, e.data)
}

// WithCas ... Same entry carrying the version assigned by a backend
func (e *Element) WithCas(casUnique uint64) *Element {
	return newOwned(e.key, e.flags, e.expire, casUnique, e.data)
}

// Equal ... Field by field comparison
func (e *Element) Equal(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.key == o.key &&
		e.flags == o.flags &&
		e.expire == o.expire &&
		e.casUnique == o.casUnique &&
		bytes.Equal(e.data, o.data)
}
