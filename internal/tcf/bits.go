package tcf

import (
	"fmt"
	"time"
)

// The TC string packs fields at arbitrary bit offsets. bitWriter appends
// big-endian bit runs to a growing buffer; bitReader consumes them with
// bounds checking so truncated input surfaces as an error instead of a
// silent zero read.

type bitWriter struct {
	buf []byte
	n   uint // bits written so far
}

// writeInt appends the low `width` bits of v, most significant bit first.
func (w *bitWriter) writeInt(v uint64, width uint) {
	for i := int(width) - 1; i >= 0; i-- {
		byteIdx := w.n / 8
		if byteIdx >= uint(len(w.buf)) {
			w.buf = append(w.buf, 0)
		}
		if v&(1<<uint(i)) != 0 {
			w.buf[byteIdx] |= 1 << (7 - w.n%8)
		}
		w.n++
	}
}

func (w *bitWriter) writeBool(b bool) {
	if b {
		w.writeInt(1, 1)
	} else {
		w.writeInt(0, 1)
	}
}

// writeTime encodes a timestamp as deciseconds since the Unix epoch in 36 bits.
func (w *bitWriter) writeTime(t time.Time) {
	ds := t.UnixMilli() / 100
	w.writeInt(uint64(ds), 36) //nolint:gosec // 36-bit range outlives the format
}

// writeLetters encodes an uppercase A-Z string as 6-bit letters (A=0).
func (w *bitWriter) writeLetters(s string, count int) error {
	if len(s) != count {
		return fmt.Errorf("expected %d letters, got %q", count, s)
	}
	for i := 0; i < count; i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			return fmt.Errorf("letter %q outside A-Z", string(c))
		}
		w.writeInt(uint64(c-'A'), 6)
	}
	return nil
}

// bytes returns the written bits padded with zeros to a byte boundary.
func (w *bitWriter) bytes() []byte {
	return w.buf
}

type bitReader struct {
	data []byte
	pos  uint
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) remaining() uint {
	total := uint(len(r.data)) * 8
	if r.pos >= total {
		return 0
	}
	return total - r.pos
}

func (r *bitReader) readInt(width uint) (uint64, error) {
	if r.remaining() < width {
		return 0, fmt.Errorf("need %d bits at offset %d, have %d", width, r.pos, r.remaining())
	}
	var v uint64
	for i := uint(0); i < width; i++ {
		v <<= 1
		if r.data[r.pos/8]&(1<<(7-r.pos%8)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v, nil
}

func (r *bitReader) readBool() (bool, error) {
	v, err := r.readInt(1)
	return v == 1, err
}

func (r *bitReader) readTime() (time.Time, error) {
	ds, err := r.readInt(36)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ds) * 100).UTC(), nil //nolint:gosec // 36-bit value
}

func (r *bitReader) readLetters(count int) (string, error) {
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		v, err := r.readInt(6)
		if err != nil {
			return "", err
		}
		if v > 25 {
			return "", fmt.Errorf("letter value %d outside A-Z", v)
		}
		out[i] = byte('A' + v)
	}
	return string(out), nil
}
