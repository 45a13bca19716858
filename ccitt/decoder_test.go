package ccitt

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/pagedio/common"
	"mit.edu/dsg/pagedio/randomaccess"
)

// encode packs bit strings MSB first, padding the last byte with zeros.
func encode(codes ...string) []byte {
	bits := strings.Join(codes, "")
	out := make([]byte, (len(bits)+7)/8)
	for i := 0; i < len(bits); i++ {
		if bits[i] == '1' {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// alignedRow pads a row's codes to a whole number of bytes.
func alignedRow(codes ...string) string {
	bits := strings.Join(codes, "")
	if rem := len(bits) % 8; rem != 0 {
		bits += strings.Repeat("0", 8-rem)
	}
	return bits
}

func white(n int) string {
	if n < 64 {
		return whiteTerminatingCodes[n]
	}
	return whiteMakeUpCodes[n/64-1] + whiteTerminatingCodes[n%64]
}

func black(n int) string {
	if n < 64 {
		return blackTerminatingCodes[n]
	}
	return blackMakeUpCodes[n/64-1] + blackTerminatingCodes[n%64]
}

func decodeAll(t *testing.T, data []byte, opts Options) []byte {
	out, err := io.ReadAll(NewDecoder(bytes.NewReader(data), opts))
	require.NoError(t, err)
	return out
}

func TestDecoder_AllWhiteLine(t *testing.T) {
	data := encode(whiteMakeUpCodes[26], whiteTerminatingCodes[0])
	require.Equal(t, []byte{0x4D, 0x9A, 0x80}, data)

	for _, opts := range []Options{{}, {Rows: 1}} {
		d := NewDecoder(bytes.NewReader(data), opts)
		assert.Equal(t, 216, d.RowBytes())

		row := make([]byte, 216)
		n, err := io.ReadFull(d, row)
		require.NoError(t, err)
		assert.Equal(t, 216, n)
		assert.Equal(t, make([]byte, 216), row)

		n, err = d.Read(make([]byte, 1))
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF, "no second row")
		assert.Equal(t, 1, d.Rows())
	}
}

func TestDecoder_MakeUpAndColors(t *testing.T) {
	data := encode(white(10), black(70), white(120))
	out := decodeAll(t, data, Options{Columns: 200})
	require.Len(t, out, 25)

	row := &PackedBits{data: out, numBits: 200}
	for i := 0; i < 200; i++ {
		assert.Equal(t, i >= 10 && i < 80, row.Get(i), "pixel %d", i)
	}
}

func TestDecoder_ExtendedMakeUp(t *testing.T) {
	// 2560 + 1792 + 0 black, then 8 white.
	data := encode(white(0), extendedMakeUpCodes[12], extendedMakeUpCodes[0], black(0), white(8))
	out := decodeAll(t, data, Options{Columns: 4360})
	require.Len(t, out, 545)
	for i := 0; i < 544; i++ {
		require.Equal(t, byte(0xFF), out[i], "byte %d", i)
	}
	assert.Equal(t, byte(0x00), out[544])
}

func TestDecoder_EOLsAndRTC(t *testing.T) {
	rtc := strings.Repeat(eolCode, rtcLength)
	data := encode(
		"0000", eolCode, white(8),
		eolCode, white(0), black(8),
		rtc,
		"11111111", // trailing garbage after the end of data is never decoded
	)
	out := decodeAll(t, data, Options{Columns: 8})
	assert.Equal(t, []byte{0x00, 0xFF}, out)
}

func TestDecoder_EOLEndsShortRow(t *testing.T) {
	data := encode(white(2), black(3), eolCode, white(16))
	out := decodeAll(t, data, Options{Columns: 16})
	assert.Equal(t, []byte{0x38, 0x00, 0x00, 0x00}, out)
}

func TestDecoder_RowLimit(t *testing.T) {
	data := encode(white(0), black(8), white(8), white(0), black(8))
	d := NewDecoder(bytes.NewReader(data), Options{Columns: 8, Rows: 2})
	out, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x00}, out)
	assert.Equal(t, 2, d.Rows())
}

func TestDecoder_EncodedByteAlign(t *testing.T) {
	data := encode(alignedRow(white(8)), alignedRow(white(0), black(8)), alignedRow(white(3), black(5)))
	require.Equal(t, []byte{0x98, 0x35, 0x14, 0x83}, data)

	out := decodeAll(t, data, Options{Columns: 8, EncodedByteAlign: true})
	assert.Equal(t, []byte{0x00, 0xFF, 0x1F}, out)
}

func TestDecoder_RunClampedToColumns(t *testing.T) {
	out := decodeAll(t, encode(white(3), black(20)), Options{Columns: 8})
	assert.Equal(t, []byte{0x1F}, out)
}

func TestDecoder_PartialRowAtEnd(t *testing.T) {
	out := decodeAll(t, encode(white(4), black(2)), Options{Columns: 16})
	assert.Equal(t, []byte{0x0C, 0x00}, out)
}

func TestDecoder_CorruptData(t *testing.T) {
	data := encode(white(8), "000000001")
	d := NewDecoder(bytes.NewReader(data), Options{Columns: 8})

	b, err := d.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), b)

	_, err = d.ReadByte()
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.CorruptDataError), "got %v", err)
	assert.Contains(t, err.Error(), "row 1")

	_, err = d.Read(make([]byte, 4))
	assert.True(t, common.IsCode(err, common.CorruptDataError), "errors are sticky")
}

func TestDecoder_ReadRow(t *testing.T) {
	data := encode(white(0), black(8), white(8))
	d := NewDecoder(bytes.NewReader(data), Options{Columns: 8})

	row, err := d.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, row)
	row, err = d.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, row)
	_, err = d.ReadRow()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_FromInputStream(t *testing.T) {
	data := encode(white(10), black(70), white(120), white(200))
	shared := randomaccess.Share(randomaccess.WrapBytes(data))
	defer shared.Close()

	out, err := io.ReadAll(NewDecoder(shared.NewInputStream(0), Options{Columns: 200}))
	require.NoError(t, err)
	require.Len(t, out, 50)
	assert.Equal(t, make([]byte, 25), out[25:])
}

func TestPackedBits(t *testing.T) {
	p := NewPackedBits(20)
	assert.Equal(t, 20, p.Len())
	assert.Len(t, p.Bytes(), 3)

	p.SetRange(3, 19)
	assert.Equal(t, []byte{0x1F, 0xFF, 0xE0}, p.Bytes())
	p.Clear()
	p.Set(0)
	p.Set(19)
	assert.Equal(t, []byte{0x80, 0x00, 0x10}, p.Bytes())
	assert.True(t, p.Get(19))
	assert.False(t, p.Get(18))
	p.SetRange(5, 5)
	assert.Equal(t, []byte{0x80, 0x00, 0x10}, p.Bytes())
}

func TestTreesDecodeEveryCode(t *testing.T) {
	for n := 0; n < 1792; n++ {
		for _, tc := range []struct {
			tree *node
			code string
		}{{whiteTree, white(n)}, {blackTree, black(n)}} {
			d := NewDecoder(bytes.NewReader(encode(tc.code)), Options{})
			total := 0
			for {
				word, err := d.next(tc.tree)
				require.NoError(t, err, "run %d", n)
				require.NotNil(t, word, "run %d", n)
				total += word.runLength
				if word.kind == terminatingCode {
					break
				}
			}
			assert.Equal(t, n, total)
		}
	}
}
