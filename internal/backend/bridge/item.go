package bridge

import (
	"bytes"

	"github.com/denzelpenzel/mcbridge/internal/element"
)

// Item ... Transfer form exchanged with the remote cache
type Item struct {
	Key        string
	Data       []byte
	Flags      uint32
	Expire     int64
	Version    uint64 // assigned by the remote, ignored on writes
	Compressed bool
}

// Clone ... Deep copy
func (i *Item) Clone() *Item {
	c := *i
	c.Data = bytes.Clone(i.Data)
	return &c
}

// toItem copies the payload out of the element
func toItem(e *element.Element) *Item {
	return &Item{
		Key:    e.Key(),
		Data:   e.Data(),
		Flags:  e.Flags(),
		Expire: e.Expire(),
	}
}

// toElement copies the payload out of the item
func toElement(i *Item) *element.Element {
	return element.New(i.Key, i.Flags, i.Expire, i.Version, i.Data)
}
