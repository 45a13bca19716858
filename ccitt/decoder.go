// Package ccitt decodes CCITT Group 3 one-dimensional (modified Huffman) fax data into packed
// bit rows, black = 1.
package ccitt

import (
	"bufio"
	"errors"
	"io"

	"mit.edu/dsg/pagedio/common"
)

// DefaultColumns is the standard G3 line width.
const DefaultColumns = 1728

// rtcLength is the number of consecutive EOLs that mark the end of the data (return to control).
const rtcLength = 6

// Options configures a Decoder.
type Options struct {
	// Columns is the number of pixels per row. Zero means DefaultColumns.
	Columns int
	// Rows stops decoding after this many rows. Zero means decode until the data ends.
	Rows int
	// EncodedByteAlign makes every row start on a byte boundary of the input.
	EncodedByteAlign bool
}

type decoderState uint8

const (
	betweenLines decoderState = iota
	endOfData
)

// bitReader reads single bits MSB first.
type bitReader struct {
	src  io.ByteReader
	cur  byte
	left int
}

func (r *bitReader) readBit() (byte, error) {
	if r.left == 0 {
		b, err := r.src.ReadByte()
		if err != nil {
			return 0, err
		}
		r.cur, r.left = b, 8
	}
	r.left--
	return (r.cur >> r.left) & 1, nil
}

// alignToByte drops the rest of the current input byte.
func (r *bitReader) alignToByte() {
	r.left = 0
}

// Decoder is an io.Reader producing the decoded rows of a G3 1-D stream, each packed into
// (Columns+7)/8 bytes.
type Decoder struct {
	bits    bitReader
	opts    Options
	line    *PackedBits
	state   decoderState
	row     int
	readPos int
	err     error
}

var _ io.ByteReader = (*Decoder)(nil)

// NewDecoder returns a decoder reading encoded data from r. If r is not an io.ByteReader it is
// buffered.
func NewDecoder(r io.Reader, opts Options) *Decoder {
	if opts.Columns <= 0 {
		opts.Columns = DefaultColumns
	}
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := &Decoder{
		bits: bitReader{src: br},
		opts: opts,
		line: NewPackedBits(opts.Columns),
	}
	// Nothing is decoded yet, so the first Read decodes a row.
	d.readPos = len(d.line.Bytes())
	return d
}

// Columns returns the row width in pixels.
func (d *Decoder) Columns() int {
	return d.opts.Columns
}

// RowBytes returns the number of bytes each decoded row occupies.
func (d *Decoder) RowBytes() int {
	return len(d.line.Bytes())
}

// Rows returns the number of rows decoded so far.
func (d *Decoder) Rows() int {
	return d.row
}

// next walks tree along the input and returns the code word reached. io.EOF is returned if the input
// ends, whether or not a code was started; a nil word means the bits match no code.
func (d *Decoder) next(tree *node) (*codeWord, error) {
	cur := tree
	for cur.leaf == nil {
		bit, err := d.bits.readBit()
		if err != nil {
			return nil, err
		}
		cur = cur.children[bit]
		if cur == nil {
			return nil, nil
		}
	}
	return cur.leaf, nil
}

// decodeRow decodes one row into d.line. It returns false at the end of the data.
func (d *Decoder) decodeRow() (bool, error) {
	if d.opts.Rows > 0 && d.row >= d.opts.Rows {
		return false, nil
	}
	if d.opts.EncodedByteAlign {
		d.bits.alignToByte()
	}
	d.line.Clear()

	columns := d.opts.Columns
	writePos, accumulated := 0, 0
	white := true
	expectRTC := rtcLength
	for writePos < columns || accumulated > 0 {
		tree := whiteTree
		if !white {
			tree = blackTree
		}
		word, err := d.next(tree)
		if errors.Is(err, io.EOF) {
			// A row cut short by the end of the input is still delivered.
			if writePos > 0 {
				break
			}
			return false, nil
		}
		if err != nil {
			return false, common.WrapError(common.IOError, err, "read fax data at row %d", d.row)
		}
		if word == nil {
			return false, common.NewError(common.CorruptDataError,
				"invalid %s code at row %d, column %d", colorName(white), d.row, writePos)
		}

		switch word.kind {
		case eolMarker:
			if writePos == 0 && accumulated == 0 {
				expectRTC--
				if expectRTC == 0 {
					return false, nil
				}
				if d.opts.EncodedByteAlign {
					d.bits.alignToByte()
				}
				continue
			}
			// An EOL inside a row ends it; the rest stays white.
			return d.finishRow(), nil
		case makeUpCode:
			accumulated += word.runLength
		case terminatingCode:
			run := accumulated + word.runLength
			accumulated = 0
			end := min(writePos+run, columns)
			if !white {
				d.line.SetRange(writePos, end)
			}
			writePos = end
			white = !white
		}
	}
	return d.finishRow(), nil
}

func (d *Decoder) finishRow() bool {
	d.row++
	d.readPos = 0
	return true
}

func colorName(white bool) string {
	if white {
		return "white"
	}
	return "black"
}

// fill makes sure a decoded row has unread bytes. It returns io.EOF at the end of the data.
func (d *Decoder) fill() error {
	if d.err != nil {
		return d.err
	}
	if d.readPos < len(d.line.Bytes()) {
		return nil
	}
	if d.state == endOfData {
		return io.EOF
	}
	ok, err := d.decodeRow()
	if err != nil {
		d.err = err
		return err
	}
	if !ok {
		d.state = endOfData
		return io.EOF
	}
	return nil
}

// Read fills p with decoded row bytes, decoding further rows as needed.
func (d *Decoder) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if err := d.fill(); err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		c := copy(p[n:], d.line.Bytes()[d.readPos:])
		d.readPos += c
		n += c
	}
	return n, nil
}

func (d *Decoder) ReadByte() (byte, error) {
	if err := d.fill(); err != nil {
		return 0, err
	}
	b := d.line.Bytes()[d.readPos]
	d.readPos++
	return b, nil
}

// ReadRow decodes the next row and returns it. The slice is reused by the following call.
func (d *Decoder) ReadRow() ([]byte, error) {
	d.readPos = len(d.line.Bytes())
	if err := d.fill(); err != nil {
		return nil, err
	}
	d.readPos = len(d.line.Bytes())
	return d.line.Bytes(), nil
}
