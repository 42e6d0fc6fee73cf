package textprot

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/engine"
	"github.com/denzelpenzel/mcbridge/internal/op"
)

// relativeLimit is the largest exptime read as seconds from now, larger
// values are absolute unix times
const relativeLimit = 60 * 60 * 24 * 30

// maxAbsExptime is the largest absolute exptime, in seconds, kept in ms without overflow
const maxAbsExptime = math.MaxInt64 / 1000

const noReply = "noreply"

type ParserText struct {
	reader      *bufio.Reader
	maxItemSize int
	now         func() time.Time
}

type ParserOpt func(*ParserText)

func MaxItemSize(n int) ParserOpt {
	return func(t *ParserText) {
		t.maxItemSize = n
	}
}

// Clock ... Time source for absolute exptimes
func Clock(now func() time.Time) ParserOpt {
	return func(t *ParserText) {
		t.now = now
	}
}

func NewTextParser(reader *bufio.Reader, opts ...ParserOpt) *ParserText {
	t := &ParserText{
		reader:      reader,
		maxItemSize: DefaultMaxItemSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Parse ... Reads one command line, and its data block for storage commands.
// An unknown verb is not an error here, it yields op.None
func (t *ParserText) Parse() (*engine.Command, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}

	parts := strings.Fields(line)
	if len(parts) == 0 {
		return &engine.Command{Op: op.None}, nil
	}

	o, ok := op.Resolve([]byte(parts[0]))
	if !ok {
		return &engine.Command{Op: op.None}, nil
	}

	args := parts[1:]
	cmd := &engine.Command{Op: o}

	switch o {
	case op.Set, op.Add, op.Replace, op.Append, op.Prepend, op.Cas:
		return t.storage(cmd, args)

	case op.Get, op.Gets:
		if len(args) == 0 {
			return cmd, common.ErrBadRequest
		}
		for _, k := range args {
			if err := checkKey(k); err != nil {
				return cmd, err
			}
		}
		cmd.Keys = args
		return cmd, nil

	case op.Delete:
		args = trailingNoReply(cmd, args)
		// legacy "delete <key> 0"
		if len(args) == 2 && args[1] == "0" {
			args = args[:1]
		}
		if len(args) != 1 {
			return cmd, common.ErrBadRequest
		}
		return cmd, withKey(cmd, args[0])

	case op.Incr, op.Decr:
		args = trailingNoReply(cmd, args)
		if len(args) != 2 {
			return cmd, common.ErrBadRequest
		}
		delta, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil || delta > math.MaxInt64 {
			return cmd, common.ErrBadDelta
		}
		cmd.Delta = int64(delta)
		return cmd, withKey(cmd, args[0])

	case op.Touch:
		args = trailingNoReply(cmd, args)
		if len(args) != 2 {
			return cmd, common.ErrBadRequest
		}
		exptime, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return cmd, common.ErrBadExptime
		}
		cmd.Expire = t.expire(exptime)
		return cmd, withKey(cmd, args[0])

	case op.FlushAll:
		args = trailingNoReply(cmd, args)
		switch len(args) {
		case 0:
		case 1:
			delay, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || delay < 0 {
				return cmd, common.ErrBadRequest
			}
			cmd.Delay = time.Duration(delay) * time.Second
		default:
			return cmd, common.ErrBadRequest
		}
		return cmd, nil

	case op.Verbosity:
		args = trailingNoReply(cmd, args)
		if len(args) != 1 {
			return cmd, common.ErrBadRequest
		}
		if _, err := strconv.Atoi(args[0]); err != nil {
			return cmd, common.ErrBadRequest
		}
		return cmd, nil

	case op.Stats:
		if len(args) > 1 {
			return cmd, common.ErrBadRequest
		}
		if len(args) == 1 {
			cmd.Filter = args[0]
		}
		return cmd, nil

	case op.Version, op.Quit:
		if len(args) != 0 {
			return cmd, common.ErrBadRequest
		}
		return cmd, nil
	}

	return &engine.Command{Op: op.None}, nil
}

// storage parses "<verb> <key> <flags> <exptime> <bytes> [cas] [noreply]" and
// reads the data block. Once the length is known the block is always consumed,
// so a rejected command leaves the stream in sync
func (t *ParserText) storage(cmd *engine.Command, args []string) (*engine.Command, error) {
	args = trailingNoReply(cmd, args)

	want := 4
	if cmd.Op == op.Cas {
		want = 5
	}
	if len(args) != want {
		return cmd, common.ErrBadRequest
	}

	length, err := strconv.Atoi(args[3])
	if err != nil || length < 0 {
		return cmd, common.ErrBadRequest
	}

	if length > t.maxItemSize {
		if err := t.swallow(length + 2); err != nil {
			return cmd, err
		}
		return cmd, common.ErrValueTooBig
	}

	data, err := t.block(length)
	if err != nil {
		return cmd, err
	}

	key := args[0]
	if err := withKey(cmd, key); err != nil {
		return cmd, err
	}

	flags, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return cmd, common.ErrBadRequest
	}

	exptime, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return cmd, common.ErrBadExptime
	}

	if cmd.Op == op.Cas {
		cmd.CasUnique, err = strconv.ParseUint(args[4], 10, 64)
		if err != nil {
			return cmd, common.ErrBadRequest
		}
	}

	cmd.Element = element.New(key, uint32(flags), t.expire(exptime), 0, data)
	return cmd, nil
}

// block reads length bytes followed by "\r\n"
func (t *ParserText) block(length int) ([]byte, error) {
	buf := make([]byte, length+2)
	if _, err := io.ReadFull(t.reader, buf); err != nil {
		return nil, fmt.Errorf("read data block: %w", err)
	}
	if !bytes.HasSuffix(buf, []byte("\r\n")) {
		// resync on the next line
		if _, err := t.reader.ReadString('\n'); err != nil {
			return nil, err
		}
		return nil, common.ErrBadDataChunk
	}
	return buf[:length], nil
}

func (t *ParserText) swallow(n int) error {
	if _, err := t.reader.Discard(n); err != nil {
		return fmt.Errorf("discard data block: %w", err)
	}
	return nil
}

// expire converts a protocol exptime into ms from now, 0 for never.
// Anything already in the past becomes 1ms
func (t *ParserText) expire(exptime int64) int64 {
	switch {
	case exptime == 0:
		return 0
	case exptime < 0:
		return 1
	case exptime <= relativeLimit:
		return exptime * 1000
	}

	exptime = min(exptime, maxAbsExptime)
	ms := exptime*1000 - t.now().UnixMilli()
	if ms <= 0 {
		return 1
	}
	return ms
}

func trailingNoReply(cmd *engine.Command, args []string) []string {
	if n := len(args); n > 0 && args[n-1] == noReply {
		cmd.NoReply = true
		return args[:n-1]
	}
	return args
}

func checkKey(key string) error {
	if len(key) > common.MaxKeyLength {
		return common.ErrKeyTooLong
	}
	return nil
}

func withKey(cmd *engine.Command, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	cmd.Keys = []string{key}
	return nil
}
