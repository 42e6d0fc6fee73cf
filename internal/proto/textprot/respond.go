package textprot

import (
	"bufio"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/engine"
	"github.com/denzelpenzel/mcbridge/internal/op"
)

type ResponderText struct {
	writer *bufio.Writer
}

func NewTextResponder(writer *bufio.Writer) ResponderText {
	return ResponderText{
		writer: writer,
	}
}

// Respond ... Writes the response. noreply silences every command that has
// one, QUIT never gets an answer
func (t ResponderText) Respond(res *engine.Response) error {
	if res.Kind == engine.KindQuit || res.Cmd.NoReply {
		return nil
	}

	switch res.Kind {
	case engine.KindStore:
		return t.resp(storeLine(res.Cmd.Op, res.Store))

	case engine.KindDelete:
		if res.Delete == backend.Deleted {
			return t.resp("DELETED")
		}
		return t.resp("NOT_FOUND")

	case engine.KindTouch:
		if res.Touch == backend.Touched {
			return t.resp("TOUCHED")
		}
		return t.resp("NOT_FOUND")

	case engine.KindIncrDecr:
		if !res.Found {
			return t.resp("NOT_FOUND")
		}
		return t.resp(strconv.FormatUint(res.Value, 10))

	case engine.KindValues:
		return t.values(res)

	case engine.KindStats:
		return t.stats(res.Stats)

	case engine.KindVersion:
		return t.resp("VERSION " + res.Version)

	case engine.KindAck:
		return t.resp("OK")
	}

	return t.resp(common.ErrInternal.Error())
}

// storeLine maps a store outcome on the wire. ADD reports a present key as NOT_STORED
func storeLine(o op.Op, r backend.StoreResult) string {
	switch r {
	case backend.Stored:
		return "STORED"
	case backend.Exists:
		if o == op.Add {
			return "NOT_STORED"
		}
		return "EXISTS"
	case backend.NotFound:
		return "NOT_FOUND"
	default:
		return "NOT_STORED"
	}
}

func (t ResponderText) values(res *engine.Response) error {
	withCas := res.Cmd.Op == op.Gets

	// VALUE <key> <flags> <bytes> [<cas unique>]\r\n
	// <data block>\r\n
	// END\r\n
	for _, e := range res.Values {
		var err error
		if withCas {
			_, err = fmt.Fprintf(t.writer, "VALUE %s %d %d %d\r\n", e.Key(), e.Flags(), e.Size(), e.CasUnique())
		} else {
			_, err = fmt.Fprintf(t.writer, "VALUE %s %d %d\r\n", e.Key(), e.Flags(), e.Size())
		}
		if err != nil {
			return err
		}

		if _, err := e.WriteData(t.writer); err != nil {
			return err
		}

		if _, err := t.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}

	return t.resp("END")
}

func (t ResponderText) stats(stats map[string]string) error {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(t.writer, "STAT %s %s\r\n", k, stats[k]); err != nil {
			return err
		}
	}

	return t.resp("END")
}

// Error ... App errors are written as their protocol line, anything else
// becomes a SERVER_ERROR with the cause
func (t ResponderText) Error(_ *engine.Command, err error) error {
	if s := common.Sentinel(err); s != nil {
		return t.resp(s.Error())
	}
	if errors.Is(err, common.ErrMalformedElement) {
		return t.resp("SERVER_ERROR " + common.ErrMalformedElement.Error())
	}
	return t.resp("SERVER_ERROR " + singleLine(err.Error()))
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func (t ResponderText) resp(s string) error {
	if _, err := t.writer.WriteString(s + "\r\n"); err != nil {
		return err
	}

	return t.writer.Flush()
}
