package main

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

const (
	msFactor   = 1000000
	numBuckets = 100
	maxHeight  = 50
)

// Stats ... Latency summary in milliseconds
type Stats struct {
	Avg float64
	Min float64
	Max float64
	P50 float64
	P75 float64
	P90 float64
	P95 float64
	P99 float64
}

// GetStats ... Sorts data (nanoseconds) in place and summarizes it
func GetStats(data []int) Stats {
	if len(data) == 0 {
		return Stats{}
	}

	slices.Sort(data)

	return Stats{
		Avg: avg(data) / msFactor,
		Min: float64(data[0]) / msFactor,
		Max: float64(data[len(data)-1]) / msFactor,
		P50: percent(data, 0.5) / msFactor,
		P75: percent(data, 0.75) / msFactor,
		P90: percent(data, 0.9) / msFactor,
		P95: percent(data, 0.95) / msFactor,
		P99: percent(data, 0.99) / msFactor,
	}
}

// bucketize ... Counts sorted samples into numBuckets equal-width buckets
func bucketize(data []int) []int {
	buckets := make([]int, numBuckets)
	lo, hi := data[0], data[len(data)-1]
	width := float64(hi-lo) / numBuckets

	for _, d := range data {
		i := int(float64(d-lo) / width)
		buckets[min(i, numBuckets-1)]++
	}
	return buckets
}

// PrintStats ... Histogram of sorted latencies below p99
func PrintStats(data []int) {
	p99Idx := pIdx(len(data), 0.99)
	if p99Idx < 2 {
		return
	}
	data = data[:p99Idx]
	lo, hi := data[0], data[len(data)-1]
	if lo == hi {
		return
	}

	buckets := bucketize(data)
	top := slices.Max(buckets)
	topIdx := slices.Index(buckets, top)

	heights := make([]int, numBuckets)
	for i, c := range buckets {
		heights[i] = int(math.Ceil(float64(c) * maxHeight / float64(top)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*d\n", topIdx+3, top)
	b.WriteString(strings.Repeat(" ", topIdx) + "v\n")
	for row := maxHeight; row > 0; row-- {
		for _, h := range heights {
			if h >= row {
				b.WriteByte('|')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("=", numBuckets) + "\n")
	b.WriteString("^" + strings.Repeat(" ", numBuckets/2-1) + "^" + strings.Repeat(" ", numBuckets/2-2) + "^\n")

	gmin := float64(lo) / msFactor
	gmax := float64(hi) / msFactor
	fmt.Fprintf(&b, "%-50s%-49s%s\n",
		fmt.Sprintf("%.4fms", gmin),
		fmt.Sprintf("%.4fms", gmin+(gmax-gmin)/2),
		fmt.Sprintf("%.4fms", gmax))

	fmt.Print(b.String())
}

func avg(data []int) float64 {
	r := float64(0)
	for _, d := range data {
		r += float64(d)
	}
	return r / float64(len(data))
}

func percent(data []int, p float64) float64 {
	return float64(data[pIdx(len(data), p)])
}

func pIdx(datalen int, p float64) int {
	w := math.Ceil(float64(datalen) * p)
	return int(min(w, float64(datalen-1)))
}
