package element

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/denzelpenzel/mcbridge/internal/common"
)

// Append ... e.data ++ other.data, keeping e's key, flags and expire
func (e *Element) Append(other *Element) *Element {
	data := make([]byte, 0, len(e.data)+len(other.data))
	data = append(data, e.data...)
	data = append(data, other.data...)
	return newOwned(e.key, e.flags, e.expire, e.casUnique+1, data)
}

// Prepend ... other.data ++ e.data, keeping e's key, flags and expire
func (e *Element) Prepend(other *Element) *Element {
	data := make([]byte, 0, len(e.data)+len(other.data))
	data = append(data, other.data...)
	data = append(data, e.data...)
	return newOwned(e.key, e.flags, e.expire, e.casUnique+1, data)
}

// Counter ... Parses the payload as an unsigned decimal
func (e *Element) Counter() (uint64, error) {
	s := strings.TrimRight(string(e.data), " ")
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q", common.ErrNonNumeric, e.key)
	}
	return v, nil
}

// IncrDecr ... Adds delta to the numeric payload. A result below zero is
// clamped to 0, an increment past the uint64 range wraps around
func (e *Element) IncrDecr(delta int64) (uint64, *Element, error) {
	cur, err := e.Counter()
	if err != nil {
		return 0, nil, err
	}

	var next uint64
	if delta >= 0 {
		next = cur + uint64(delta)
	} else {
		dec := uint64(-(delta + 1)) + 1
		if dec >= cur {
			next = 0
		} else {
			next = cur - dec
		}
	}

	data := strconv.AppendUint(nil, next, 10)
	return next, newOwned(e.key, e.flags, e.expire, e.casUnique+1, data), nil
}
