package netabase

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestValueRoundTrip(t *testing.T) {
	data := []byte{0x81, 0xa1, 0x6e, 0xa5, 'A', 'l', 'i', 'c', 'e'}
	raw := encodeValue(3, 17, data)

	var vle value
	ok(t, vle.decode(raw))
	deepEqual(t, vle.Format, uint64(valueFormatV1))
	deepEqual(t, vle.ValueMeta(), ValueMeta{SchemaVer: 3, ModCount: 17})
	deepEqual(t, vle.Data, data)
	deepEqual(t, vle.ValueMeta().Exists(), true)
	deepEqual(t, ValueMeta{}.Exists(), false)
}

func TestValueHeaderLayout(t *testing.T) {
	raw := encodeValue(2, 300, []byte("xy"))
	deepEqual(t, raw, []byte{1, 2, 0xAC, 0x02, 2, 'x', 'y'})
}

func TestValueDecodeErrors(t *testing.T) {
	good := encodeValue(1, 1, []byte("abcd"))
	tests := []struct {
		name string
		raw  []byte
	}{
		{"too short", []byte{1, 1}},
		{"unsupported format", append([]byte{0x20}, good[1:]...)},
		{"schema version out of range", rawValue(valueFormatV1, maxSchemaVersion+1, 1, []byte("abcd"))},
		{"data size mismatch", good[:len(good)-1]},
		{"truncated varint", []byte{1, 0x80, 0x80, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vle value
			err := vle.decode(tt.raw)
			if !errors.Is(err, ErrEncoding) {
				t.Fatalf("** decode(%x) = %v, wanted ErrEncoding", tt.raw, err)
			}
		})
	}
}

func rawValue(format, schemaVer, modCount uint64, data []byte) []byte {
	var buf []byte
	buf = binary.AppendUvarint(buf, format)
	buf = binary.AppendUvarint(buf, schemaVer)
	buf = binary.AppendUvarint(buf, modCount)
	buf = binary.AppendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}
