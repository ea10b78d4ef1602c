package netabase

import (
	"bytes"
	"context"
	"log/slog"
)

const traceScans = false

// RawRange selects encoded keys of a table. Constructor names spell out the
// bounds, lower bound first: O is open, I is inclusive, E is exclusive.
// Prefix, when set, further restricts the range and must prefix both bounds.
type RawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func between(lower []byte, lowerInc bool, upper []byte, upperInc bool) RawRange {
	return RawRange{Lower: lower, LowerInc: lowerInc, Upper: upper, UpperInc: upperInc}
}

func RawOO() RawRange             { return RawRange{} }
func RawIO(lower []byte) RawRange { return between(lower, true, nil, false) }
func RawEO(lower []byte) RawRange { return between(lower, false, nil, false) }
func RawOI(upper []byte) RawRange { return between(nil, false, upper, true) }
func RawOE(upper []byte) RawRange { return between(nil, false, upper, false) }
func RawII(l, u []byte) RawRange  { return between(l, true, u, true) }
func RawIE(l, u []byte) RawRange  { return between(l, true, u, false) }
func RawEI(l, u []byte) RawRange  { return between(l, false, u, true) }
func RawEE(l, u []byte) RawRange  { return between(l, false, u, false) }
func RawPrefix(p []byte) RawRange { return RawRange{Prefix: p} }

func (r RawRange) Prefixed(p []byte) RawRange { r.Prefix = p; return r }
func (r RawRange) Reversed() RawRange         { r.Reverse = true; return r }

type keyPlacement int

const (
	keyInside keyPlacement = iota
	keyBeforeStart
	keyPastEnd
)

func belowLower(k, lower []byte, inc bool) bool {
	if lower == nil {
		return false
	}
	cmp := bytes.Compare(k, lower)
	return cmp < 0 || (cmp == 0 && !inc)
}

func aboveUpper(k, upper []byte, inc bool) bool {
	if upper == nil {
		return false
	}
	cmp := bytes.Compare(k, upper)
	return cmp > 0 || (cmp == 0 && !inc)
}

// place tells where k lies relative to the range in scan order.
func (r *RawRange) place(k []byte) keyPlacement {
	if r.Prefix != nil && !bytes.HasPrefix(k, r.Prefix) {
		return keyPastEnd
	}
	below := belowLower(k, r.Lower, r.LowerInc)
	above := aboveUpper(k, r.Upper, r.UpperInc)
	if r.Reverse {
		below, above = above, below
	}
	switch {
	case above:
		return keyPastEnd
	case below:
		return keyBeforeStart
	default:
		return keyInside
	}
}

func (r *RawRange) validate() {
	if r.Prefix == nil {
		return
	}
	if r.Lower != nil && !bytes.HasPrefix(r.Lower, r.Prefix) {
		panic("lower bound does not match prefix")
	}
	if r.Upper != nil && !bytes.HasPrefix(r.Upper, r.Prefix) {
		panic("upper bound does not match prefix")
	}
}

func (r *RawRange) seek(bcur storageCursor) (k, v []byte) {
	if r.Reverse {
		switch {
		case r.Upper != nil:
			k, v = bcur.SeekLast(r.Upper)
		case r.Prefix != nil:
			k, v = bcur.SeekLast(r.Prefix)
		default:
			k, v = bcur.Last()
		}
	} else {
		switch {
		case r.Lower != nil:
			k, v = bcur.Seek(r.Lower)
		case r.Prefix != nil:
			k, v = bcur.Seek(r.Prefix)
		default:
			k, v = bcur.First()
		}
	}
	traceScan("seek", k)
	return k, v
}

func (r *RawRange) step(bcur storageCursor) (k, v []byte) {
	if r.Reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	traceScan("step", k)
	return k, v
}

func (r RawRange) newCursor(b storageBucket) *RawRangeCursor {
	r.validate()
	c := &RawRangeCursor{rang: r}
	if b != nil {
		c.bcur = b.Cursor()
	}
	return c
}

// RawRangeCursor walks a RawRange, skipping nested buckets.
// A cursor over a missing table yields nothing.
type RawRangeCursor struct {
	rang    RawRange
	bcur    storageCursor
	k, v    []byte
	started bool
	done    bool
}

func (c *RawRangeCursor) Next() bool {
	if c.bcur == nil || c.done {
		return false
	}
	var k, v []byte
	if c.started {
		k, v = c.rang.step(c.bcur)
	} else {
		c.started = true
		k, v = c.rang.seek(c.bcur)
	}
	for k != nil {
		switch c.rang.place(k) {
		case keyPastEnd:
			k = nil
			continue
		case keyInside:
			if v != nil {
				c.k, c.v = k, v
				return true
			}
		}
		k, v = c.rang.step(c.bcur)
	}
	c.k, c.v, c.done = nil, nil, true
	return false
}

func (c *RawRangeCursor) Key() []byte   { return c.k }
func (c *RawRangeCursor) Value() []byte { return c.v }

func traceScan(op string, key []byte) {
	if traceScans {
		slog.Default().LogAttrs(context.Background(), slog.LevelDebug, "scan "+op, hexAttr("key", key))
	}
}
