package textprot

import (
	"bufio"

	"github.com/denzelpenzel/mcbridge/internal/proto"
)

// DefaultMaxItemSize ... Largest data block accepted when none is configured
const DefaultMaxItemSize = 1 << 20

// NewComponents ... Holder for all the different protocol components in the textprot package
func NewComponents(maxItemSize int) proto.Components {
	if maxItemSize <= 0 {
		maxItemSize = DefaultMaxItemSize
	}
	return comps{maxItemSize: maxItemSize}
}

type comps struct {
	maxItemSize int
}

func (c comps) NewRequestParser(r *bufio.Reader) proto.RequestParser {
	return NewTextParser(r, MaxItemSize(c.maxItemSize))
}

func (c comps) NewResponder(w *bufio.Writer) proto.Responder {
	return NewTextResponder(w)
}

func (c comps) NewDisambiguator(p proto.Peeker) proto.Disambiguator {
	return disam{p}
}

type disam struct {
	p proto.Peeker
}

func (d disam) CanParse() (bool, error) {
	headerByte, err := d.p.Peek(1)
	if err != nil {
		return false, err
	}
	return headerByte[0] >= 'a' && headerByte[0] <= 'z', nil
}
