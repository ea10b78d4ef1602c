package netabase

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// A tuple key stores its elements back to back, followed by the byte length
// of every element but the last, followed by the element count. Lengths and
// the count are uvarints with their bytes reversed so that a decoder can peel
// them off the end of the key. Index entries are 2-tuples (see pair).
type tuple [][]byte

func (tup tuple) String() string {
	parts := make([]string, len(tup))
	for i, el := range tup {
		parts[i] = hex.EncodeToString(el)
	}
	return strings.Join(parts, "|")
}

func (tup tuple) Equal(other tuple) bool {
	if len(tup) != len(other) {
		return false
	}
	for i := range tup {
		if !bytes.Equal(tup[i], other[i]) {
			return false
		}
	}
	return true
}

func (tup tuple) encode(buf []byte) []byte {
	var te tupleEncoder
	for _, el := range tup {
		te.begin(buf)
		buf = append(buf, el...)
	}
	return te.finalize(buf)
}

func decodeTuple(raw []byte) (tuple, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	count, rest, err := decodeRuvarint(raw)
	if err != nil {
		return nil, dataErrf(raw, len(rest), err, "invalid tuple count")
	}
	if count == 0 {
		return nil, nil
	}
	if uint64(count) > uint64(len(raw)) {
		return nil, dataErrf(raw, len(rest), nil, "invalid tuple: %d elements in %d bytes", count, len(raw))
	}

	// Lengths come off the tail last-to-first.
	n := int(count)
	lens := make([]int, n-1)
	var explicit uint64
	for i := n - 2; i >= 0; i-- {
		var l uint32
		l, rest, err = decodeRuvarint(rest)
		if err != nil {
			return nil, dataErrf(raw, len(rest), err, "invalid tuple element length")
		}
		lens[i] = int(l)
		explicit += uint64(l)
	}
	if explicit > uint64(len(rest)) {
		return nil, dataErrf(raw, len(rest), nil, "invalid tuple: element lengths add up to %d, only %d bytes of data", explicit, len(rest))
	}

	tup := make(tuple, n)
	for i, l := range lens {
		tup[i], rest = rest[:l], rest[l:]
	}
	tup[n-1] = rest
	return tup, nil
}

// tupleEncoder builds a tuple in place: call begin before writing each
// element to buf, then finalize to append the trailer.
type tupleEncoder struct {
	start   int
	started bool
	done    bool
	lens    []int
}

func (te *tupleEncoder) begin(buf []byte) {
	if te.done {
		panic("tupleEncoder used after finalize")
	}
	if te.started {
		te.lens = append(te.lens, len(buf)-te.start)
	}
	te.start, te.started = len(buf), true
}

func (te *tupleEncoder) finalize(buf []byte) []byte {
	for _, l := range te.lens {
		buf = appendRuvarint(buf, uint32(l))
	}
	te.done = true
	return appendRuvarint(buf, uint32(len(te.lens)+1))
}

func appendRuvarint(buf []byte, v uint32) []byte {
	start := len(buf)
	buf = binary.AppendUvarint(buf, uint64(v))
	tail := buf[start:]
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return buf
}

// decodeRuvarint reads a reversed uvarint from the end of buf and returns
// the remaining prefix.
func decodeRuvarint(buf []byte) (uint32, []byte, error) {
	n := len(buf)
	if n == 0 {
		return 0, buf, errTruncated
	}
	var vb [binary.MaxVarintLen32]byte
	c := min(n, len(vb))
	for i := range c {
		vb[i] = buf[n-1-i]
	}
	v, vn := binary.Uvarint(vb[:c])
	if vn <= 0 || v > 1<<32-1 {
		return 0, buf, errBadVarint
	}
	return uint32(v), buf[:n-vn], nil
}

// pair encodes the 2-tuple used as the key of every index entry.
func pair(a, b []byte) []byte {
	return tuple{a, b}.encode(make([]byte, 0, len(a)+len(b)+6))
}

func decodePair(raw []byte) ([]byte, []byte, error) {
	tup, err := decodeTuple(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(tup) != 2 {
		return nil, nil, dataErrf(raw, 0, nil, "index entry: expected 2 tuple elements, got %d", len(tup))
	}
	return tup[0], tup[1], nil
}
