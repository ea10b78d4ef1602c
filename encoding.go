package netabase

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Row data and topic state are msgpack. Map keys are sorted so that equal
// values always give equal bytes: no-op detection and content hashes compare
// encoded rows.

func encodeMsgpack(buf []byte, val reflect.Value) ([]byte, error) {
	w := &sliceWriter{buf: buf}
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(w)
	enc.SetSortMapKeys(true)
	if err := enc.EncodeValue(val); err != nil {
		return nil, fmt.Errorf("%w: msgpack encoding %v: %v", ErrEncoding, val.Type(), err)
	}
	return w.buf, nil
}

func decodeMsgpack(data []byte, ptrVal reflect.Value) error {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))
	if err := dec.DecodeValue(ptrVal); err != nil {
		return dataErrf(data, 0, err, "failed to decode msgpack into %v", ptrVal.Type())
	}
	return nil
}

func marshalMsgpack(v any) ([]byte, error) {
	return encodeMsgpack(nil, reflect.ValueOf(v))
}

func unmarshalMsgpack(data []byte, ptr any) error {
	return decodeMsgpack(data, reflect.ValueOf(ptr))
}
