package netabase

import (
	"encoding/json"
	"reflect"
)

// ModelStats sums up the physical size of a model's tables.
type ModelStats struct {
	Rows      int
	IndexRows int

	DataSize   int64
	DataAlloc  int64
	IndexSize  int64
	IndexAlloc int64
}

func (ms *ModelStats) TotalSize() int64 {
	return ms.DataSize + ms.IndexSize
}

func (ms *ModelStats) TotalAlloc() int64 {
	return ms.DataAlloc + ms.IndexAlloc
}

// Stats measures m's main table and every derived table. Tables never
// written count as empty.
func (tx *Tx) Stats(m *Model) (ModelStats, error) {
	mt, err := tx.OpenModelTables(m, TablePermissions{})
	if err != nil {
		return ModelStats{}, err
	}
	if err := mt.checkRead(); err != nil {
		return ModelStats{}, err
	}

	var result ModelStats
	if b := mt.main.bucket(""); b != nil {
		bs := b.Stats()
		result.Rows = countEntries(b)
		result.DataSize = bs.LeafInuse
		result.DataAlloc = bs.TotalAlloc()
	}
	for _, t := range mt.all()[1:] {
		b := t.bucket("")
		if b == nil {
			continue
		}
		bs := b.Stats()
		result.IndexRows += countEntries(b)
		result.IndexSize += bs.LeafInuse
		result.IndexAlloc += bs.TotalAlloc()
	}
	return result, nil
}

func loggableRowVal(m *Model, rowVal reflect.Value) string {
	if !rowVal.IsValid() {
		return "<none>"
	}
	if m.suppressContent {
		return "<suppressed>"
	}
	return loggableVal(rowVal)
}

func loggableVal(val reflect.Value) string {
	if !val.IsValid() {
		return "<none>"
	}
	return string(must(json.Marshal(val.Interface())))
}
