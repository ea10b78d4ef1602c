package netabase

import (
	"fmt"
	"os"
	"time"
)

// TableNames lists the tables physically present in the store, in byte
// order. Tables declared by the Definition but never written are absent.
func (tx *Tx) TableNames() ([]string, error) {
	tx.ensureOpen()
	if tx.grant != nil {
		if err := CheckPermission(tx.grant, tx.store.def, false); err != nil {
			return nil, err
		}
	}
	var names []string
	err := tx.stx.ForEachBucket(func(name string) error {
		names = append(names, name)
		return nil
	})
	return names, wrapStorage("list tables", err)
}

// RawTable is untyped access to one table by name, for tools that migrate
// data between schema versions. Keys and values are the stored bytes; slices
// returned by Get and Scan are only valid until the transaction ends.
type RawTable struct {
	t *table
}

// RawTable opens the table called name, which need not belong to the current
// Definition. Opening ReadWrite needs a write transaction and, under a grant,
// write permission.
func (tx *Tx) RawTable(name string, access Access) (*RawTable, error) {
	tx.ensureOpen()
	write := access == ReadWrite
	if write && !tx.writable {
		return nil, &PermissionError{Definition: tx.store.def.name, Table: name, Write: true, Reason: "read-only transaction"}
	}
	if tx.grant != nil {
		if err := CheckPermission(tx.grant, tx.store.def, write); err != nil {
			return nil, err
		}
	}
	return &RawTable{&table{tx, name, access}}, nil
}

func (rt *RawTable) Name() string { return rt.t.name }

// Exists reports whether the table is physically present.
func (rt *RawTable) Exists() bool {
	return rt.t.bucket("") != nil
}

func (rt *RawTable) Get(key []byte) []byte {
	return rt.t.get("", key)
}

func (rt *RawTable) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return rt.t.put("", key, value)
}

func (rt *RawTable) Delete(key []byte) error {
	return rt.t.delete("", key)
}

// Scan calls f for every entry within rang until f returns false.
func (rt *RawTable) Scan(rang RawRange, f func(key, value []byte) bool) {
	c := rang.newCursor(rt.t.bucket(""))
	for c.Next() {
		if !f(c.Key(), c.Value()) {
			return
		}
	}
}

func (rt *RawTable) Count() int {
	return countEntries(rt.t.bucket(""))
}

// Drop deletes the whole table, nested tables included.
func (rt *RawTable) Drop() error {
	if err := rt.t.checkWritable(); err != nil {
		return err
	}
	if rt.t.bucket("") == nil {
		return nil
	}
	rt.t.tx.markWritten()
	if err := rt.t.tx.stx.DeleteBucket(rt.t.name, ""); err != nil {
		return tableErrf(rt.t.name, "", wrapStorage("drop", err), "")
	}
	return nil
}

// TableInfo describes one physical table of a store file.
type TableInfo struct {
	Name  string
	Rows  int
	Alloc int64
	Subs  []string
}

// InspectFile lists the tables of the store file at path without needing its
// Definition. The file is opened read-only.
func InspectFile(path string) ([]TableInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	bs, err := openBoltStorage(path, Options{Timeout: time.Second}, true)
	if err != nil {
		return nil, err
	}
	defer bs.Close()

	stx, err := bs.BeginTx(false)
	if err != nil {
		return nil, wrapStorage("begin", err)
	}
	defer stx.Rollback()

	var result []TableInfo
	err = stx.ForEachBucket(func(name string) error {
		b := stx.Bucket(name, "")
		if b == nil {
			return fmt.Errorf("table %s vanished", name)
		}
		info := TableInfo{
			Name:  name,
			Rows:  countEntries(b),
			Alloc: b.Stats().TotalAlloc(),
		}
		err := stx.ForEachSub(name, func(sub string) error {
			info.Subs = append(info.Subs, sub)
			return nil
		})
		result = append(result, info)
		return err
	})
	if err != nil {
		return nil, wrapStorage("inspect "+path, err)
	}
	return result, nil
}
