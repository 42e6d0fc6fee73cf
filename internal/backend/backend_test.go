package backend

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Deadline(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name   string
		expire int64
		want   int64
	}{
		{"never", 0, 0},
		{"negative", -5, 0},
		{"relative", 1500, 1_700_000_001_500},
		{"last exact value", math.MaxInt64 - now.UnixMilli(), math.MaxInt64},
		{"saturates", math.MaxInt64 - now.UnixMilli() + 1, math.MaxInt64},
		{"huge", 9_223_370_336_854_776_000, math.MaxInt64},
		{"max", math.MaxInt64, math.MaxInt64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Deadline(now, tc.expire))
		})
	}
}

func Test_TTL(t *testing.T) {
	tests := []struct {
		name   string
		expire int64
		want   time.Duration
	}{
		{"never", 0, 0},
		{"negative", -1, 0},
		{"ms", 250, 250 * time.Millisecond},
		{"limit", maxTTL, time.Duration(maxTTL) * time.Millisecond},
		{"saturates", maxTTL + 1, time.Duration(maxTTL) * time.Millisecond},
		{"max", math.MaxInt64, time.Duration(maxTTL) * time.Millisecond},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TTL(tc.expire)
			require.Equal(t, tc.want, got)
			require.GreaterOrEqual(t, got, time.Duration(0))
		})
	}
}

func Test_Filter(t *testing.T) {
	stats := map[string]string{"a": "1", "b": "2"}
	require.Equal(t, stats, Filter(stats, ""))
	require.Equal(t, map[string]string{"b": "2"}, Filter(stats, "b"))
	require.Empty(t, Filter(stats, "c"))
}
