package element_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"testing"

	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/utils"
	"github.com/stretchr/testify/require"
)

func Test_Immutability(t *testing.T) {
	src := []byte("bar")
	e := element.New("foo", 7, 0, 1, src)

	src[0] = 'X'
	require.Equal(t, []byte("bar"), e.Data())

	out := e.Data()
	out[0] = 'Y'
	require.Equal(t, []byte("bar"), e.Data())

	touched := e.WithExpire(1000)
	require.Equal(t, int64(0), e.Expire())
	require.Equal(t, int64(1000), touched.Expire())
	require.Equal(t, e.Data(), touched.Data())
	require.Equal(t, e.Flags(), touched.Flags())
}

func Test_CodecLayout(t *testing.T) {
	e := element.New("ab", 0x01020304, 5000, 9, []byte("xyz"))
	b := e.Encode(element.FormatCompat)

	require.Len(t, b, 4+8+4+2+4+4+3+4)
	require.Equal(t, uint32(len(b)), binary.BigEndian.Uint32(b[0:4]))
	require.Equal(t, uint64(5000), binary.BigEndian.Uint64(b[4:12]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(b[12:16]))
	require.Equal(t, "ab", string(b[16:18]))
	require.Equal(t, uint32(0x01020304), binary.BigEndian.Uint32(b[18:22]))
	require.Equal(t, uint32(3), binary.BigEndian.Uint32(b[22:26]))
	require.Equal(t, "xyz", string(b[26:29]))
	require.Equal(t, uint32(9), binary.BigEndian.Uint32(b[29:33]))

	wide := e.Encode(element.FormatWide)
	require.Len(t, wide, len(b)+4)
	require.Equal(t, uint64(9), binary.BigEndian.Uint64(wide[29:37]))

	m, err := e.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, b, m)
}

func Test_RoundTrip(t *testing.T) {
	for _, keyLen := range []int{1, 10, 250} {
		for _, dataLen := range []int{0, 1, 100, 64 * 1024} {
			key := string(utils.RandData(int64(keyLen)))
			data := utils.RandData(int64(dataLen))

			t.Run("compat/"+strconv.Itoa(keyLen)+"/"+strconv.Itoa(dataLen), func(t *testing.T) {
				e := element.New(key, math.MaxUint32, -1, 42, data)
				got, n, err := element.Decode(e.Encode(element.FormatCompat), element.FormatCompat)
				require.NoError(t, err)
				require.Equal(t, e.EncodedLen(element.FormatCompat), n)
				require.True(t, e.Equal(got))
			})

			t.Run("wide/"+strconv.Itoa(keyLen)+"/"+strconv.Itoa(dataLen), func(t *testing.T) {
				e := element.New(key, 3, 60_000, math.MaxUint64-1, data)
				got, n, err := element.Decode(e.Encode(element.FormatWide), element.FormatWide)
				require.NoError(t, err)
				require.Equal(t, e.EncodedLen(element.FormatWide), n)
				require.True(t, e.Equal(got))
			})
		}
	}
}

func Test_CompatTruncatesCas(t *testing.T) {
	e := element.New("k", 0, 0, 1<<32+5, []byte("v"))

	got, err := element.Unmarshal(e.Encode(element.FormatCompat))
	require.NoError(t, err)
	require.Equal(t, uint64(5), got.CasUnique())

	got, _, err = element.Decode(e.Encode(element.FormatWide), element.FormatWide)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<32+5), got.CasUnique())
}

func Test_DecodeDoesNotAlias(t *testing.T) {
	b := element.New("key", 0, 0, 1, []byte("payload")).Encode(element.FormatCompat)
	e, err := element.Unmarshal(b)
	require.NoError(t, err)

	for i := range b {
		b[i] = 0
	}
	require.Equal(t, "key", e.Key())
	require.Equal(t, []byte("payload"), e.Data())
}

func Test_DecodeMalformed(t *testing.T) {
	valid := element.New("key", 1, 2, 3, []byte("data")).Encode(element.FormatCompat)

	corrupt := func(off int, v uint32) []byte {
		b := bytes.Clone(valid)
		binary.BigEndian.PutUint32(b[off:], v)
		return b
	}

	cases := map[string][]byte{
		"empty":             {},
		"short header":      valid[:10],
		"key past end":      corrupt(12, 1000),
		"negative key len":  corrupt(12, 0xFFFFFFFF),
		"zero key len":      corrupt(12, 0),
		"data past end":     corrupt(4+8+4+3+4, 1<<20),
		"negative data len": corrupt(4+8+4+3+4, 0x80000000),
		"missing cas":       valid[:len(valid)-2],
		"invalid utf8 key": func() []byte {
			b := bytes.Clone(valid)
			b[16] = 0xff
			return b
		}(),
	}

	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := element.Decode(b, element.FormatCompat)
			require.Error(t, err)
			require.True(t, errors.Is(err, common.ErrMalformedElement))
		})
	}

	// wide decoding of a compat record runs out of bytes for the cas field
	_, _, err := element.Decode(valid, element.FormatWide)
	require.ErrorIs(t, err, common.ErrMalformedElement)
}

func Test_TotalLengthIsAdvisory(t *testing.T) {
	b := element.New("key", 0, 0, 1, []byte("v")).Encode(element.FormatCompat)
	binary.BigEndian.PutUint32(b[0:4], 12345)

	e, err := element.Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, "key", e.Key())
}

func Test_StreamReadWrite(t *testing.T) {
	var buf bytes.Buffer
	in := []*element.Element{
		element.New("a", 1, 0, 1, []byte("1")),
		element.New("b", 2, 100, 2, nil),
		element.New("c", 3, -1, 1<<40, []byte("three")),
	}

	for _, e := range in {
		require.NoError(t, e.Write(&buf, element.FormatWide))
	}

	for _, want := range in {
		got, err := element.Read(&buf, element.FormatWide)
		require.NoError(t, err)
		require.True(t, want.Equal(got))
	}

	_, err := element.Read(&buf, element.FormatWide)
	require.ErrorIs(t, err, io.EOF)

	t.Run("inconsistent frame", func(t *testing.T) {
		b := element.New("a", 0, 0, 0, []byte("x")).Encode(element.FormatWide)
		binary.BigEndian.PutUint32(b[0:4], uint32(len(b)+4))
		b = append(b, 0, 0, 0, 0)
		_, err := element.Read(bytes.NewReader(b), element.FormatWide)
		require.ErrorIs(t, err, common.ErrMalformedElement)
	})

	t.Run("truncated", func(t *testing.T) {
		b := element.New("a", 0, 0, 0, []byte("x")).Encode(element.FormatWide)
		_, err := element.Read(bytes.NewReader(b[:len(b)-1]), element.FormatWide)
		require.ErrorIs(t, err, common.ErrMalformedElement)
	})
}

func Test_AppendPrepend(t *testing.T) {
	a := element.New("foo", 5, 1000, 10, []byte("bar"))
	b := element.New("foo", 9, 0, 99, []byte("baz"))

	app := a.Append(b)
	require.Equal(t, []byte("barbaz"), app.Data())
	require.Equal(t, a.Size()+b.Size(), app.Size())
	require.Equal(t, uint64(11), app.CasUnique())
	require.Equal(t, uint32(5), app.Flags())
	require.Equal(t, int64(1000), app.Expire())

	pre := a.Prepend(b)
	require.Equal(t, []byte("bazbar"), pre.Data())
	require.Equal(t, uint64(11), pre.CasUnique())

	// inputs untouched
	require.Equal(t, []byte("bar"), a.Data())
	require.Equal(t, []byte("baz"), b.Data())
}

func Test_IncrDecr(t *testing.T) {
	cases := []struct {
		payload string
		delta   int64
		want    uint64
	}{
		{"10", 5, 15},
		{"15", -100, 0},
		{"0", -1, 0},
		{"7", -7, 0},
		{"7 ", 1, 8},
		{"18446744073709551615", 1, 0},
		{"5", math.MinInt64, 0},
		{"100", 0, 100},
	}

	for _, c := range cases {
		t.Run(c.payload+"/"+strconv.FormatInt(c.delta, 10), func(t *testing.T) {
			e := element.New("ctr", 1, 0, 3, []byte(c.payload))
			got, next, err := e.IncrDecr(c.delta)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
			require.Equal(t, strconv.FormatUint(c.want, 10), string(next.Data()))
			require.Equal(t, uint64(4), next.CasUnique())
		})
	}

	_, _, err := element.New("ctr", 0, 0, 0, []byte("abc")).IncrDecr(1)
	require.ErrorIs(t, err, common.ErrNonNumeric)

	_, _, err = element.New("ctr", 0, 0, 0, []byte("-3")).IncrDecr(1)
	require.ErrorIs(t, err, common.ErrNonNumeric)
}

func Test_DecrNeverBelowZero(t *testing.T) {
	for cur := uint64(0); cur < 50; cur += 7 {
		for delta := int64(-60); delta <= 60; delta += 3 {
			e := element.New("k", 0, 0, 0, []byte(strconv.FormatUint(cur, 10)))
			got, next, err := e.IncrDecr(delta)
			require.NoError(t, err)

			v, err := next.Counter()
			require.NoError(t, err)
			require.Equal(t, got, v)

			if int64(cur)+delta < 0 {
				require.Zero(t, got)
			} else {
				require.Equal(t, uint64(int64(cur)+delta), got)
			}
		}
	}
}
