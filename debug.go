package netabase

import (
	"fmt"
	"strings"
)

// DumpFlags select the sections Tx.Dump renders.
type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpRows
	DumpStats
	DumpIndices
	DumpIndexRows

	DumpAll = ^DumpFlags(0)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return f&v == v
}

const dumpWidth = 80

var dumpSep = strings.Repeat("-", 60)

// Dump renders every model of the transaction's Definition for debugging.
func (tx *Tx) Dump(f DumpFlags) string {
	d := dumper{tx: tx, flags: f}
	for _, m := range tx.store.def.models {
		d.model(m)
	}
	return d.out.String()
}

type dumper struct {
	tx    *Tx
	flags DumpFlags
	out   strings.Builder
}

func (d *dumper) printf(format string, args ...any) {
	fmt.Fprintf(&d.out, format, args...)
}

func (d *dumper) model(m *Model) {
	mt, err := d.tx.OpenModelTables(m, TablePermissions{})
	if err == nil {
		err = mt.checkRead()
	}
	var s ModelStats
	if err == nil {
		s, err = d.tx.Stats(m)
	}
	if err != nil {
		d.printf("%s ** ERROR: %v\n", m.name, err)
		return
	}

	if d.flags.Contains(DumpTableHeaders) {
		d.printf("%s\n", ruler(fmt.Sprintf("%s (%d rows)", m.name, s.Rows), dumpWidth))
	}
	if d.flags.Contains(DumpStats) {
		d.printf("%s.stats: index_rows = %d, data_size = %d, data_alloc = %d, index_size = %d, index_alloc = %d, total_alloc = %d\n",
			m.name, s.IndexRows, s.DataSize, s.DataAlloc, s.IndexSize, s.IndexAlloc, s.TotalAlloc())
	}
	if d.flags.Contains(DumpRows) {
		if d.flags.Contains(DumpStats) {
			d.printf("%s\n", dumpSep)
		}
		d.rows(mt)
	}
	if d.flags.Contains(DumpIndices) {
		for _, sk := range m.secondaries {
			d.index(mt.secondaries[sk.pos], m, sk.valueEnc.keyString)
		}
		for _, rk := range m.relations {
			d.index(mt.relations[rk.pos], m, rk.valueEnc.keyString)
		}
		for _, t := range mt.topics {
			d.index(t, m, func(raw []byte) string { return string(raw) })
		}
		d.index(mt.hash, m, hexKey)
	}
}

func (d *dumper) rows(mt *ModelTables) {
	m := mt.model
	c := RawOO().newCursor(mt.main.bucket(""))
	for i := 1; c.Next(); i++ {
		rowVal, meta, err := mt.decodeStored(c.Key(), c.Value())
		if err != nil {
			d.printf("%s.%d = ** ERROR: %v\n", m.name, i, err)
			continue
		}
		d.printf("%s.%d = (m%d s%d) %s\n", m.name, i, meta.ModCount, meta.SchemaVer, loggableRowVal(m, rowVal))
	}
}

// index prints a derived table; entries are (value, primary key) pairs.
func (d *dumper) index(t *table, m *Model, valueString func(raw []byte) string) {
	b := t.bucket("")
	d.printf("%s\n%s (%d entries)\n", dumpSep, t.name, countEntries(b))
	if !d.flags.Contains(DumpIndexRows) {
		return
	}
	c := RawOO().newCursor(b)
	for i := 1; c.Next(); i++ {
		valueRaw, keyRaw, err := decodePair(c.Key())
		if err != nil {
			d.printf("%s.%d ** ERROR: %v\n", t.name, i, err)
			continue
		}
		d.printf("%s.%d: %s => %s\n", t.name, i, valueString(valueRaw), m.keyString(keyRaw))
	}
}
