package utils

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz1234567890-_"

func GetTCPAddr(addr string) (*net.TCPAddr, error) {
	res, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	return res, nil
}

func TempDir(name string) string {
	path, err := os.MkdirTemp("", name)
	if err != nil {
		panic("failed to create temp dir")
	}
	return path
}

// RandData ... Random printable bytes, safe to use as memcached keys
func RandData(length int64) []byte {
	res := make([]byte, length)
	if _, err := rand.Read(res); err != nil {
		panic(err)
	}
	for i := range res {
		res[i] = alphabet[int(res[i])%len(alphabet)]
	}
	return res
}

// GenKeys ... totKeys distinct random keys
func GenKeys(totKeys int) []string {
	seen := make(map[string]struct{}, totKeys)
	keys := make([]string, 0, totKeys)
	for len(keys) < totKeys {
		k := string(RandData(10))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func IdentifyPanic() string {
	var (
		name, file string
		line       int
		pc         [16]uintptr
	)
	// Capture the program counters for up to 16 stack frames, skipping 3 frames to get to the caller
	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	return fmt.Sprintf("Panic occurred at: %v:%v (line %v)", file, name, line)
}

func Connect(addr string) (net.Conn, error) {
	return net.Dial("tcp", addr)
}
