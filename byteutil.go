package netabase

import (
	"encoding/binary"
	"math"
)

// sliceWriter lets msgpack encode straight onto the end of a byte slice.
type sliceWriter struct {
	buf []byte
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *sliceWriter) WriteByte(c byte) error {
	w.buf = append(w.buf, c)
	return nil
}

// headerReader reads the uvarint fields of a stored value header, failing
// with a *DataError that points at the offending offset.
type headerReader struct {
	raw []byte
	off int
}

func (r *headerReader) uvarint(field string) (uint64, error) {
	v, n := binary.Uvarint(r.raw[r.off:])
	if n <= 0 {
		return 0, dataErrf(r.raw, r.off, errBadVarint, "value header: %s", field)
	}
	r.off += n
	return v, nil
}

func (r *headerReader) length(field string) (int, error) {
	v, err := r.uvarint(field)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt {
		return 0, dataErrf(r.raw, r.off, nil, "value header: %s %d does not fit into int", field, v)
	}
	return int(v), nil
}

func (r *headerReader) rest() []byte {
	return r.raw[r.off:]
}
