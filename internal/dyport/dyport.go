// Package dyport hands out free loopback TCP ports to tests that need a
// fixed address before the listener starts.
package dyport

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net"
	"strconv"
	"sync"
)

const (
	minPort   = 10000
	blockSize = 1024
	maxBlocks = 16
	attempts  = 3
)

var (
	mu    sync.Mutex
	base  int
	next  int
	ready bool
)

var errNoBlock = errors.New("dyport: no free port block")

// pickBlock ... Chooses a random block of ports, so parallel test binaries
// rarely probe the same range
func pickBlock() error {
	for i := 0; i < attempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(maxBlocks))
		if err != nil {
			continue
		}
		start := minPort + int(n.Int64())*blockSize
		if !free(start) {
			continue
		}
		base, next, ready = start, start, true
		return nil
	}
	return errNoBlock
}

// AllocatePorts ... count ports that were free when probed, at most blockSize-1
func AllocatePorts(count int) ([]int, error) {
	if count > blockSize-1 {
		count = blockSize - 1
	}

	mu.Lock()
	defer mu.Unlock()

	if !ready {
		if err := pickBlock(); err != nil {
			return nil, err
		}
	}

	ports := make([]int, 0, count)
	for probed := 0; len(ports) < count; probed++ {
		if probed >= blockSize {
			return nil, errNoBlock
		}
		next++
		if next >= base+blockSize {
			next = base + 1
		}
		if free(next) {
			ports = append(ports, next)
		}
	}
	return ports, nil
}

// AllocateAddr ... One free "127.0.0.1:port" address
func AllocateAddr() (string, error) {
	ports, err := AllocatePorts(1)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[0])), nil
}

func free(port int) bool {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
