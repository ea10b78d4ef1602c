package netabase

import (
	"encoding/binary"
)

// A Main-table record is a header of four uvarints (format, schema version,
// modification count, data size) followed by the msgpack row.
const (
	valueFormatV1 = 1

	minValueSize     = 4
	maxSchemaVersion = 32768 // sanity limit
)

// value is a decoded Main-table record.
type value struct {
	Format    uint64
	SchemaVer uint64
	ModCount  uint64
	Data      []byte
}

// ValueMeta describes a stored record without decoding it.
type ValueMeta struct {
	SchemaVer uint64
	ModCount  uint64
}

// Exists reports whether the meta came from a stored record; every stored
// record has been written at least once.
func (vm ValueMeta) Exists() bool { return vm.ModCount != 0 }

func (vle value) ValueMeta() ValueMeta {
	return ValueMeta{SchemaVer: vle.SchemaVer, ModCount: vle.ModCount}
}

func encodeValue(schemaVer, modCount uint64, data []byte) []byte {
	buf := make([]byte, 0, 4*binary.MaxVarintLen64+len(data))
	for _, field := range [...]uint64{valueFormatV1, schemaVer, modCount, uint64(len(data))} {
		buf = binary.AppendUvarint(buf, field)
	}
	return append(buf, data...)
}

func (vle *value) decode(raw []byte) error {
	if len(raw) < minValueSize {
		return dataErrf(raw, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	r := headerReader{raw: raw}
	var v value
	var err error
	if v.Format, err = r.uvarint("format"); err != nil {
		return err
	}
	if v.Format != valueFormatV1 {
		return dataErrf(raw, r.off, nil, "invalid value: unsupported format %d", v.Format)
	}
	if v.SchemaVer, err = r.uvarint("schema version"); err != nil {
		return err
	}
	if v.SchemaVer > maxSchemaVersion {
		return dataErrf(raw, r.off, nil, "invalid value: bad schema version %d", v.SchemaVer)
	}
	if v.ModCount, err = r.uvarint("modification count"); err != nil {
		return err
	}
	size, err := r.length("data size")
	if err != nil {
		return err
	}
	if v.Data = r.rest(); len(v.Data) != size {
		return dataErrf(raw, r.off, nil, "invalid value: got %d bytes of data, expected %d", len(v.Data), size)
	}
	*vle = v
	return nil
}
