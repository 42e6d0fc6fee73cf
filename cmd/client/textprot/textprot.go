package textprot

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/denzelpenzel/mcbridge/internal/common"
)

const (
	maxTTL = 3600
)

// TextProt ... Minimal memcached text protocol client used by the load tool.
// Misses (NOT_FOUND, NOT_STORED, EXISTS, empty gets) come back as common.ErrMiss
type TextProt struct{}

type value struct {
	key  string
	data []byte
	cas  uint64
}

func send(rw *bufio.ReadWriter, format string, args ...interface{}) error {
	if _, err := fmt.Fprintf(rw, format, args...); err != nil {
		return err
	}
	return rw.Flush()
}

func status(rw *bufio.ReadWriter) (string, error) {
	line, err := rw.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")

	switch {
	case line == "STORED" || line == "DELETED" || line == "TOUCHED" || line == "OK":
		return line, nil
	case line == "NOT_STORED" || line == "NOT_FOUND" || line == "EXISTS":
		return line, common.ErrMiss
	case line == "ERROR" || strings.HasPrefix(line, "CLIENT_ERROR") || strings.HasPrefix(line, "SERVER_ERROR"):
		return line, errors.New(line)
	}
	return line, nil
}

// values reads VALUE blocks up to END
func values(rw *bufio.ReadWriter) ([]value, error) {
	var ret []value
	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "END" {
			return ret, nil
		}

		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "VALUE" {
			return nil, fmt.Errorf("unexpected line %q", line)
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, err
		}
		v := value{key: fields[1]}
		if len(fields) > 4 {
			if v.cas, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
				return nil, err
			}
		}

		buf := make([]byte, n+2)
		if _, err := io.ReadFull(rw, buf); err != nil {
			return nil, err
		}
		v.data = buf[:n]
		ret = append(ret, v)
	}
}

func (t TextProt) store(rw *bufio.ReadWriter, verb string, key []byte, val []byte) error {
	if err := send(rw, "%s %s 0 0 %d\r\n%s\r\n", verb, key, len(val), val); err != nil {
		return err
	}
	_, err := status(rw)
	return err
}

func (t TextProt) Set(rw *bufio.ReadWriter, key []byte, val []byte) error {
	return t.store(rw, "set", key, val)
}

func (t TextProt) Add(rw *bufio.ReadWriter, key []byte, val []byte) error {
	return t.store(rw, "add", key, val)
}

func (t TextProt) Replace(rw *bufio.ReadWriter, key []byte, val []byte) error {
	return t.store(rw, "replace", key, val)
}

func (t TextProt) Append(rw *bufio.ReadWriter, key []byte, val []byte) error {
	return t.store(rw, "append", key, val)
}

func (t TextProt) Prepend(rw *bufio.ReadWriter, key []byte, val []byte) error {
	return t.store(rw, "prepend", key, val)
}

// Cas ... Stores val only when the item still carries cas
func (t TextProt) Cas(rw *bufio.ReadWriter, key []byte, val []byte, cas uint64) error {
	if err := send(rw, "cas %s 0 0 %d %d\r\n%s\r\n", key, len(val), cas, val); err != nil {
		return err
	}
	_, err := status(rw)
	return err
}

func (t TextProt) single(rw *bufio.ReadWriter) (value, error) {
	vs, err := values(rw)
	if err != nil {
		return value{}, err
	}
	if len(vs) == 0 {
		return value{}, common.ErrMiss
	}
	return vs[0], nil
}

func (t TextProt) Get(rw *bufio.ReadWriter, key []byte) ([]byte, error) {
	if err := send(rw, "get %s\r\n", key); err != nil {
		return nil, err
	}
	v, err := t.single(rw)
	return v.data, err
}

// Gets ... Value together with its cas unique
func (t TextProt) Gets(rw *bufio.ReadWriter, key []byte) ([]byte, uint64, error) {
	if err := send(rw, "gets %s\r\n", key); err != nil {
		return nil, 0, err
	}
	v, err := t.single(rw)
	return v.data, v.cas, err
}

// BatchGet ... Values of the keys that hit, in request order
func (t TextProt) BatchGet(rw *bufio.ReadWriter, keys [][]byte) ([][]byte, error) {
	cmd := []byte("get")
	for _, key := range keys {
		cmd = append(cmd, ' ')
		cmd = append(cmd, key...)
	}
	if err := send(rw, "%s\r\n", cmd); err != nil {
		return nil, err
	}

	vs, err := values(rw)
	if err != nil {
		return nil, err
	}
	ret := make([][]byte, 0, len(vs))
	for _, v := range vs {
		ret = append(ret, v.data)
	}
	return ret, nil
}

func (t TextProt) Delete(rw *bufio.ReadWriter, key []byte) error {
	if err := send(rw, "delete %s\r\n", key); err != nil {
		return err
	}
	_, err := status(rw)
	return err
}

func (t TextProt) Touch(rw *bufio.ReadWriter, key []byte) error {
	ttl, err := rand.Int(rand.Reader, big.NewInt(maxTTL))
	if err != nil {
		return err
	}
	if err := send(rw, "touch %s %d\r\n", key, ttl.Int64()+1); err != nil {
		return err
	}
	_, err = status(rw)
	return err
}

func (t TextProt) counter(rw *bufio.ReadWriter, verb string, key []byte, delta uint64) (uint64, error) {
	if err := send(rw, "%s %s %d\r\n", verb, key, delta); err != nil {
		return 0, err
	}
	line, err := status(rw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(line, 10, 64)
}

func (t TextProt) Incr(rw *bufio.ReadWriter, key []byte, delta uint64) (uint64, error) {
	return t.counter(rw, "incr", key, delta)
}

func (t TextProt) Decr(rw *bufio.ReadWriter, key []byte, delta uint64) (uint64, error) {
	return t.counter(rw, "decr", key, delta)
}
