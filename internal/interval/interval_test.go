package interval

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_SetInterval(t *testing.T) {
	var calls atomic.Int32
	c := SetInterval(func(time.Time) { calls.Add(1) }, time.Millisecond)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	c.Clear()
	after := calls.Load()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, after, calls.Load())

	// second clear is a no-op
	c.Clear()
}

func Test_ClearZero(t *testing.T) {
	var c Interval
	require.NotPanics(t, c.Clear)
}
