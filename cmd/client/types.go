package main

import (
	"bufio"
)

type Proto interface {
	Set(rw *bufio.ReadWriter, key []byte, value []byte) error
	Add(rw *bufio.ReadWriter, key []byte, value []byte) error
	Replace(rw *bufio.ReadWriter, key []byte, value []byte) error
	Append(rw *bufio.ReadWriter, key []byte, value []byte) error
	Prepend(rw *bufio.ReadWriter, key []byte, value []byte) error
	Cas(rw *bufio.ReadWriter, key []byte, value []byte, cas uint64) error
	Get(rw *bufio.ReadWriter, key []byte) ([]byte, error)
	Gets(rw *bufio.ReadWriter, key []byte) ([]byte, uint64, error)
	BatchGet(rw *bufio.ReadWriter, keys [][]byte) ([][]byte, error)
	Delete(rw *bufio.ReadWriter, key []byte) error
	Touch(rw *bufio.ReadWriter, key []byte) error
	Incr(rw *bufio.ReadWriter, key []byte, delta uint64) (uint64, error)
	Decr(rw *bufio.ReadWriter, key []byte, delta uint64) (uint64, error)
}

type Op int

func (o Op) String() string {
	switch o {
	case Set:
		return "Set"
	case Add:
		return "Add"
	case Replace:
		return "Replace"
	case Append:
		return "Append"
	case Prepend:
		return "Prepend"
	case Cas:
		return "Gets and Cas"
	case Get:
		return "Get"
	case Bget:
		return "Batch Get"
	case Delete:
		return "Delete"
	case Touch:
		return "Touch"
	case Incr:
		return "Incr"
	case Decr:
		return "Decr"
	default:
		return ""
	}
}

const (
	Get Op = iota
	Bget
	Set
	Add
	Replace
	Append
	Prepend
	Cas
	Touch
	Delete
	Incr
	Decr
)

var allOps = []Op{Get, Bget, Set, Add, Replace, Append, Prepend, Cas, Touch, Delete, Incr, Decr}

type metric struct {
	duration int64
	op       Op
	miss     bool
}
