package netabase

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// FlatMarshaler lets a key type control its own ordered byte form.
type FlatMarshaler interface {
	MarshalFlat(buf []byte) []byte
}

type FlatUnmarshaler interface {
	UnmarshalFlat(buf []byte) error
}

type FlatMarshallable interface {
	FlatMarshaler
	FlatUnmarshaler
}

type binaryMarshallable interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	flatMarshallableType   = reflect.TypeFor[FlatMarshallable]()
	binaryMarshallableType = reflect.TypeFor[binaryMarshallable]()
	timeType               = reflect.TypeFor[time.Time]()
	byteType               = reflect.TypeFor[byte]()
	byteSliceType          = reflect.TypeFor[[]byte]()
)

// Flipping the sign bit makes two's complement integers sort as unsigned.
const signBit = uint64(1) << 63

var keyEncodings sync.Map // reflect.Type -> *keyEncoding

// keyEncoding turns a Go key value into an ordered, non-empty byte string:
// a tuple with one element per leaf of the key type.
type keyEncoding struct {
	typ   reflect.Type
	parts []*keyPart
}

// keyPart is one leaf of a key type. via leads from the key value to the
// leaf, outermost step first.
type keyPart struct {
	typ  reflect.Type
	path string
	via  []keyStep
	put  func(buf []byte, v reflect.Value) []byte
	take func(b []byte, v reflect.Value) error
}

// keyStep descends one level. With alloc set it fills nil pointers, which
// decoding needs; otherwise a nil pointer yields the zero value.
type keyStep func(v reflect.Value, alloc bool) reflect.Value

func (p *keyPart) reach(val reflect.Value, alloc bool) reflect.Value {
	for _, step := range p.via {
		val = step(val, alloc)
	}
	return val
}

func keyEncodingOf(typ reflect.Type) *keyEncoding {
	if e, ok := keyEncodings.Load(typ); ok {
		return e.(*keyEncoding)
	}
	enc := &keyEncoding{typ: typ, parts: keyPartsOf(typ, "", nil)}
	actual, _ := keyEncodings.LoadOrStore(typ, enc)
	return actual.(*keyEncoding)
}

func (enc *keyEncoding) encode(buf []byte, val reflect.Value) []byte {
	if !val.IsValid() || val.Type() != enc.typ {
		panic(fmt.Errorf("key encoding for %v cannot encode %v", enc.typ, describeValue(val)))
	}
	var te tupleEncoder
	for _, p := range enc.parts {
		te.begin(buf)
		buf = p.put(buf, p.reach(val, false))
	}
	return te.finalize(buf)
}

func describeValue(val reflect.Value) string {
	if !val.IsValid() {
		return "nil"
	}
	return val.Type().String()
}

// decode returns a new value of the encoded type (not a pointer).
func (enc *keyEncoding) decode(raw []byte) (reflect.Value, error) {
	tup, err := decodeTuple(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(tup) != len(enc.parts) {
		return reflect.Value{}, dataErrf(raw, 0, nil, "%v key: got %d components, wanted %d", enc.typ, len(tup), len(enc.parts))
	}
	val := reflect.New(enc.typ).Elem()
	for i, p := range enc.parts {
		if err := p.take(tup[i], p.reach(val, true)); err != nil {
			return reflect.Value{}, dataErrf(raw, 0, err, "%v key%s", enc.typ, p.path)
		}
	}
	return val, nil
}

// keyString renders an encoded key for logs and dumps.
func (enc *keyEncoding) keyString(raw []byte) string {
	val, err := enc.decode(raw)
	if err != nil {
		return fmt.Sprintf("<invalid %x>", raw)
	}
	parts := make([]string, len(enc.parts))
	for i, p := range enc.parts {
		leaf := p.reach(val, false)
		if leaf.Type() == byteSliceType {
			parts[i] = fmt.Sprintf("%x", leaf.Bytes())
		} else {
			parts[i] = fmt.Sprint(leaf.Interface())
		}
	}
	return strings.Join(parts, "|")
}

func keyPartsOf(typ reflect.Type, path string, via []keyStep) []*keyPart {
	if put, take, ok := leafCodec(typ); ok {
		return []*keyPart{{typ: typ, path: path, via: via, put: put, take: take}}
	}
	switch typ.Kind() {
	case reflect.Pointer:
		elem := typ.Elem()
		deref := func(v reflect.Value, alloc bool) reflect.Value {
			if v.IsNil() {
				if !alloc {
					return reflect.Zero(elem)
				}
				v.Set(reflect.New(elem))
			}
			return v.Elem()
		}
		return keyPartsOf(elem, path, append(via[:len(via):len(via)], deref))
	case reflect.Struct:
		var parts []*keyPart
		for i := range typ.NumField() {
			field := typ.Field(i)
			if !field.IsExported() {
				panic(fmt.Errorf("key type %v has unexported field %s", typ, field.Name))
			}
			get := func(v reflect.Value, _ bool) reflect.Value { return v.Field(i) }
			parts = append(parts, keyPartsOf(field.Type, path+"."+field.Name, append(via[:len(via):len(via)], get))...)
		}
		return parts
	default:
		panic(fmt.Errorf("netabase does not know how to encode %v as a key", typ))
	}
}

func fixedLen(b []byte, n int, what string) error {
	if len(b) != n {
		return fmt.Errorf("invalid %s length: got %d bytes, wanted %d", what, len(b), n)
	}
	return nil
}

// leafCodec returns the byte form of types that form a single tuple element.
func leafCodec(typ reflect.Type) (put func([]byte, reflect.Value) []byte, take func([]byte, reflect.Value) error, ok bool) {
	ptr := reflect.PointerTo(typ)
	switch {
	case typ == timeType:
		put = func(buf []byte, v reflect.Value) []byte {
			return binary.BigEndian.AppendUint64(buf, uint64(v.Interface().(time.Time).UnixNano())^signBit)
		}
		take = func(b []byte, v reflect.Value) error {
			if err := fixedLen(b, 8, "time.Time"); err != nil {
				return err
			}
			v.Set(reflect.ValueOf(time.Unix(0, int64(binary.BigEndian.Uint64(b)^signBit)).UTC()))
			return nil
		}
	case ptr.Implements(flatMarshallableType):
		put = func(buf []byte, v reflect.Value) []byte {
			return addressable(v).Interface().(FlatMarshaler).MarshalFlat(buf)
		}
		take = func(b []byte, v reflect.Value) error {
			return v.Addr().Interface().(FlatUnmarshaler).UnmarshalFlat(b)
		}
	case ptr.Implements(binaryMarshallableType):
		put = func(buf []byte, v reflect.Value) []byte {
			data, err := addressable(v).Interface().(encoding.BinaryMarshaler).MarshalBinary()
			if err != nil {
				panic(fmt.Errorf("%v.MarshalBinary: %w", typ, err))
			}
			return append(buf, data...)
		}
		take = func(b []byte, v reflect.Value) error {
			return v.Addr().Interface().(encoding.BinaryUnmarshaler).UnmarshalBinary(b)
		}
	default:
		return kindCodec(typ)
	}
	return put, take, true
}

func kindCodec(typ reflect.Type) (put func([]byte, reflect.Value) []byte, take func([]byte, reflect.Value) error, ok bool) {
	switch typ.Kind() {
	case reflect.String:
		put = func(buf []byte, v reflect.Value) []byte { return append(buf, v.String()...) }
		take = func(b []byte, v reflect.Value) error {
			v.SetString(string(b))
			return nil
		}
	case reflect.Bool:
		put = func(buf []byte, v reflect.Value) []byte {
			if v.Bool() {
				return append(buf, 1)
			}
			return append(buf, 0)
		}
		take = func(b []byte, v reflect.Value) error {
			if len(b) != 1 || b[0] > 1 {
				return fmt.Errorf("invalid bool %x", b)
			}
			v.SetBool(b[0] == 1)
			return nil
		}
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uintptr:
		put = func(buf []byte, v reflect.Value) []byte { return binary.BigEndian.AppendUint64(buf, v.Uint()) }
		take = func(b []byte, v reflect.Value) error {
			if err := fixedLen(b, 8, "uint"); err != nil {
				return err
			}
			u := binary.BigEndian.Uint64(b)
			if v.OverflowUint(u) {
				return fmt.Errorf("value %d overflows %v", u, typ)
			}
			v.SetUint(u)
			return nil
		}
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		put = func(buf []byte, v reflect.Value) []byte {
			return binary.BigEndian.AppendUint64(buf, uint64(v.Int())^signBit)
		}
		take = func(b []byte, v reflect.Value) error {
			if err := fixedLen(b, 8, "int"); err != nil {
				return err
			}
			n := int64(binary.BigEndian.Uint64(b) ^ signBit)
			if v.OverflowInt(n) {
				return fmt.Errorf("value %d overflows %v", n, typ)
			}
			v.SetInt(n)
			return nil
		}
	case reflect.Slice:
		if typ.Elem() != byteType {
			panic(fmt.Errorf("netabase does not know how to encode slice %v as a key", typ))
		}
		put = func(buf []byte, v reflect.Value) []byte { return append(buf, v.Bytes()...) }
		take = func(b []byte, v reflect.Value) error {
			v.SetBytes(append([]byte(nil), b...))
			return nil
		}
	case reflect.Array:
		if typ.Elem() != byteType {
			panic(fmt.Errorf("netabase does not know how to encode array %v as a key", typ))
		}
		put = func(buf []byte, v reflect.Value) []byte {
			for i := range v.Len() {
				buf = append(buf, byte(v.Index(i).Uint()))
			}
			return buf
		}
		take = func(b []byte, v reflect.Value) error {
			if err := fixedLen(b, typ.Len(), typ.String()); err != nil {
				return err
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
	default:
		return nil, nil, false
	}
	return put, take, true
}

// addressable returns a pointer to v so that pointer-receiver methods are callable.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v.Addr()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p
}
