package engine

import (
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/op"
)

// Command ... One parsed request, consumed once by Dispatch
type Command struct {
	Op   op.Op
	Keys []string
	// Element is the payload of storage commands
	Element *element.Element
	// CasUnique is the version supplied to CAS
	CasUnique uint64
	// Delta is the unsigned amount of INCR/DECR, DECR negates it
	Delta int64
	// Expire is the new expire of TOUCH, in ms
	Expire int64
	// Delay is the flush_all argument
	Delay time.Duration
	// Filter is the optional stats argument
	Filter  string
	NoReply bool
}

// Key ... First key or empty
func (c *Command) Key() string {
	if len(c.Keys) == 0 {
		return ""
	}
	return c.Keys[0]
}

type Kind uint8

const (
	KindStore Kind = iota
	KindDelete
	KindTouch
	KindValues
	KindIncrDecr
	KindStats
	KindVersion
	KindAck
	KindQuit
)

// Response ... Outcome of a dispatched command. Kind selects the meaningful field
type Response struct {
	Cmd  *Command
	Kind Kind

	Store  backend.StoreResult
	Delete backend.DeleteResult
	Touch  backend.TouchResult

	Values []*element.Element

	Value uint64
	Found bool

	Stats   map[string]string
	Version string
}

// Outcome ... Short label used for metrics and logs
func (r *Response) Outcome() string {
	switch r.Kind {
	case KindStore:
		return r.Store.String()
	case KindDelete:
		return r.Delete.String()
	case KindTouch:
		return r.Touch.String()
	case KindValues:
		if len(r.Values) == 0 {
			return "miss"
		}
		return "hit"
	case KindIncrDecr:
		if !r.Found {
			return "not_found"
		}
		return "hit"
	default:
		return "ok"
	}
}
