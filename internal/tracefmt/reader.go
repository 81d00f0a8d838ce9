package tracefmt

import (
	"encoding/binary"
	"errors"
)

var errReaderEOF = errors.New("reader: unexpected end of data")

// reader is a cursor over fixed-width big-endian fields.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

// Position returns the current read position.
func (r *reader) Position() int { return r.pos }

func (r *reader) Skip(n int) error {
	if r.pos+n > len(r.data) {
		return errReaderEOF
	}
	r.pos += n
	return nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *reader) ReadBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errReaderEOF
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, errReaderEOF
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *reader) ReadUint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, errReaderEOF
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}
