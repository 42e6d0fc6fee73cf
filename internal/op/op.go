package op

import (
	"strings"
)

// Op ... Operation code resolved from a command verb
type Op uint8

const (
	// None ... the verb did not match any operation
	None Op = iota
	Get
	Gets
	Append
	Prepend
	Delete
	Decr
	Incr
	Replace
	Add
	Set
	Cas
	Stats
	Version
	Quit
	FlushAll
	Verbosity
	Touch
)

// All ... Every resolvable operation, in declaration order
var All = []Op{
	Get, Gets, Append, Prepend, Delete, Decr,
	Incr, Replace, Add, Set, Cas, Stats, Version,
	Quit, FlushAll, Verbosity, Touch,
}

var names = map[Op]string{
	None:      "NONE",
	Get:       "GET",
	Gets:      "GETS",
	Append:    "APPEND",
	Prepend:   "PREPEND",
	Delete:    "DELETE",
	Decr:      "DECR",
	Incr:      "INCR",
	Replace:   "REPLACE",
	Add:       "ADD",
	Set:       "SET",
	Cas:       "CAS",
	Stats:     "STATS",
	Version:   "VERSION",
	Quit:      "QUIT",
	FlushAll:  "FLUSH_ALL",
	Verbosity: "VERBOSITY",
	Touch:     "TOUCH",
}

// table is keyed by the lower-cased operation name
var table = func() map[string]Op {
	t := make(map[string]Op, len(All))
	for _, o := range All {
		t[strings.ToLower(o.String())] = o
	}
	return t
}()

func (o Op) String() string {
	if n, ok := names[o]; ok {
		return n
	}
	return names[None]
}

// Resolve ... Looks the token up by exact byte match. A miss returns None, false
func Resolve(token []byte) (Op, bool) {
	o, ok := table[string(token)]
	if !ok {
		return None, false
	}
	return o, true
}

// IsStorage ... Operations carrying a data block
func (o Op) IsStorage() bool {
	switch o {
	case Set, Add, Replace, Append, Prepend, Cas:
		return true
	default:
		return false
	}
}

// IsRetrieval ... Operations answered with VALUE lines
func (o Op) IsRetrieval() bool {
	return o == Get || o == Gets
}
