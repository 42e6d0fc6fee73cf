package element

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/denzelpenzel/mcbridge/internal/common"
)

// Format ... Selects the width of the casUnique field on the wire
type Format uint8

const (
	// FormatCompat ... Bit-exact legacy layout. casUnique is written as int32,
	// only its low 32 bits survive a round trip
	FormatCompat Format = iota
	// FormatWide ... Same layout with casUnique widened to int64
	FormatWide
)

// Record layout, big-endian:
//
//	int32 totalLength | int64 expire | int32 keyLength | key |
//	int32 flags | int32 dataLength | data | int32 or int64 casUnique
const (
	fixedHead = 4 + 8 + 4
	fixedMid  = 4 + 4

	// MaxRecordLength ... Upper bound accepted when framing a stream
	MaxRecordLength = 1 << 30
)

func (f Format) casWidth() int {
	if f == FormatWide {
		return 8
	}
	return 4
}

func (f Format) String() string {
	if f == FormatWide {
		return "wide"
	}
	return "compat"
}

// EncodedLen ... Size of the record for the given format
func (e *Element) EncodedLen(f Format) int {
	return fixedHead + len(e.key) + fixedMid + len(e.data) + f.casWidth()
}

// Encode ... Serializes the element. totalLength covers the whole record
func (e *Element) Encode(f Format) []byte {
	total := e.EncodedLen(f)
	b := make([]byte, total)

	pos := 0
	binary.BigEndian.PutUint32(b[pos:], uint32(total))
	pos += 4
	binary.BigEndian.PutUint64(b[pos:], uint64(e.expire))
	pos += 8
	binary.BigEndian.PutUint32(b[pos:], uint32(len(e.key)))
	pos += 4
	pos += copy(b[pos:], e.key)
	binary.BigEndian.PutUint32(b[pos:], e.flags)
	pos += 4
	binary.BigEndian.PutUint32(b[pos:], uint32(len(e.data)))
	pos += 4
	pos += copy(b[pos:], e.data)

	if f == FormatWide {
		binary.BigEndian.PutUint64(b[pos:], e.casUnique)
	} else {
		binary.BigEndian.PutUint32(b[pos:], uint32(e.casUnique))
	}

	return b
}

// MarshalBinary ... FormatCompat encoding
func (e *Element) MarshalBinary() ([]byte, error) {
	return e.Encode(FormatCompat), nil
}

// Unmarshal ... Decodes a FormatCompat record
func Unmarshal(b []byte) (*Element, error) {
	e, _, err := Decode(b, FormatCompat)
	return e, err
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", common.ErrMalformedElement, fmt.Sprintf(format, args...))
}

// cursor is a stack-local read position over an immutable buffer
type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) need(n int, field string) error {
	if n < 0 || len(c.b)-c.pos < n {
		return malformed("%s needs %d bytes at offset %d, %d left", field, n, c.pos, len(c.b)-c.pos)
	}
	return nil
}

func (c *cursor) u32(field string) (uint32, error) {
	if err := c.need(4, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.b[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) u64(field string) (uint64, error) {
	if err := c.need(8, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.b[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) length(field string) (int, error) {
	v, err := c.u32(field)
	if err != nil {
		return 0, err
	}
	n := int(int32(v))
	if n < 0 {
		return 0, malformed("negative %s %d", field, n)
	}
	return n, nil
}

func (c *cursor) bytes(n int, field string) ([]byte, error) {
	if err := c.need(n, field); err != nil {
		return nil, err
	}
	v := c.b[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// Decode ... Parses one record from the front of b and returns it together with
// the number of bytes consumed. totalLength is advisory and not compared with
// the computed size. The returned element owns copies of the key and payload
func Decode(b []byte, f Format) (*Element, int, error) {
	c := &cursor{b: b}

	if _, err := c.u32("totalLength"); err != nil {
		return nil, 0, err
	}

	expire, err := c.u64("expire")
	if err != nil {
		return nil, 0, err
	}

	keyLen, err := c.length("keyLength")
	if err != nil {
		return nil, 0, err
	}
	if keyLen == 0 {
		return nil, 0, malformed("empty key")
	}

	key, err := c.bytes(keyLen, "key")
	if err != nil {
		return nil, 0, err
	}
	if !utf8.Valid(key) {
		return nil, 0, malformed("key is not valid UTF-8")
	}

	flags, err := c.u32("flags")
	if err != nil {
		return nil, 0, err
	}

	dataLen, err := c.length("dataLength")
	if err != nil {
		return nil, 0, err
	}

	data, err := c.bytes(dataLen, "data")
	if err != nil {
		return nil, 0, err
	}

	var cas uint64
	if f == FormatWide {
		cas, err = c.u64("casUnique")
	} else {
		var v uint32
		v, err = c.u32("casUnique")
		cas = uint64(v)
	}
	if err != nil {
		return nil, 0, err
	}

	return New(string(key), flags, int64(expire), cas, data), c.pos, nil
}

// Write ... Writes the encoded record to w
func (e *Element) Write(w io.Writer, f Format) error {
	_, err := w.Write(e.Encode(f))
	return err
}

// Read ... Reads one record framed by its totalLength prefix. A clean end of
// stream before the first byte returns io.EOF
func Read(r io.Reader, f Format) (*Element, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, malformed("truncated record header")
		}
		return nil, err
	}

	total := int(int32(binary.BigEndian.Uint32(head)))
	if total < fixedHead+fixedMid+f.casWidth() || total > MaxRecordLength {
		return nil, malformed("record length %d out of range", total)
	}

	buf := make([]byte, total)
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, malformed("truncated record: %v", err)
	}

	e, n, err := Decode(buf, f)
	if err != nil {
		return nil, err
	}
	if n != total {
		return nil, malformed("record declares %d bytes, fields cover %d", total, n)
	}

	return e, nil
}
