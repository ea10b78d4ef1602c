package netabase

import (
	"fmt"
	"reflect"
)

func modelOf[Row any](tx *Tx) *Model {
	return tx.store.def.modelByRow((*Row)(nil))
}

func openRead(tx *Tx, m *Model) (*ModelTables, error) {
	return tx.OpenModelTables(m, TablePermissions{})
}

func openWrite(tx *Tx, m *Model) (*ModelTables, error) {
	if !tx.writable {
		return nil, &PermissionError{Definition: m.def.name, Table: m.name, Write: true, Reason: "read-only transaction"}
	}
	return tx.OpenModelTables(m, AllReadWrite())
}

// Create inserts a new row. See ModelTables.Create.
func Create[Row any](tx *Tx, row *Row) error {
	mt, err := openWrite(tx, modelOf[Row](tx))
	if err != nil {
		return err
	}
	return mt.Create(row)
}

// Update upserts a row. See ModelTables.Update.
func Update[Row any](tx *Tx, row *Row) error {
	mt, err := openWrite(tx, modelOf[Row](tx))
	if err != nil {
		return err
	}
	return mt.Update(row)
}

// Upsert is Update under the name callers coming from create-or-replace APIs expect.
func Upsert[Row any](tx *Tx, row *Row) error {
	return Update(tx, row)
}

// Read returns the row with the given primary key, or nil.
func Read[Row any](tx *Tx, key any) (*Row, error) {
	mt, err := openRead(tx, modelOf[Row](tx))
	if err != nil {
		return nil, err
	}
	row, err := mt.Read(key)
	if err != nil || row == nil {
		return nil, err
	}
	return row.(*Row), nil
}

// Delete removes the row with the given primary key and reports whether it existed.
func Delete[Row any](tx *Tx, key any) (bool, error) {
	mt, err := openWrite(tx, modelOf[Row](tx))
	if err != nil {
		return false, err
	}
	return mt.Delete(key)
}

// List returns all rows in primary key order.
func List[Row any](tx *Tx) ([]*Row, error) {
	return Scan[Row](tx, RawOO())
}

// Scan returns rows whose encoded primary keys fall into rang; build bounds
// with Model.EncodeKey.
func Scan[Row any](tx *Tx, rang RawRange) ([]*Row, error) {
	mt, err := openRead(tx, modelOf[Row](tx))
	if err != nil {
		return nil, err
	}
	var rows []*Row
	err = mt.each(rang, func(rowVal reflect.Value) bool {
		rows = append(rows, rowVal.Interface().(*Row))
		return true
	})
	return rows, err
}

func Count[Row any](tx *Tx) (int, error) {
	mt, err := openRead(tx, modelOf[Row](tx))
	if err != nil {
		return 0, err
	}
	return mt.Count()
}

// KeysBySecondary returns the primary keys of sk's model having value.
func KeysBySecondary[K any](tx *Tx, sk *SecondaryKey, value any) ([]K, error) {
	mt, err := openRead(tx, sk.model)
	if err != nil {
		return nil, err
	}
	return typedKeys[K](mt.KeysBySecondary(sk, value))
}

// BySecondary returns the rows having value under sk.
func BySecondary[Row any](tx *Tx, sk *SecondaryKey, value any) ([]*Row, error) {
	mt, err := openRead(tx, sk.model)
	if err != nil {
		return nil, err
	}
	return rowsByKeys[Row](mt)(mt.KeysBySecondary(sk, value))
}

// KeysByRelational returns primary keys of rows referencing fk through rk.
func KeysByRelational[K any](tx *Tx, rk *RelationalKey, fk any) ([]K, error) {
	mt, err := openRead(tx, rk.model)
	if err != nil {
		return nil, err
	}
	return typedKeys[K](mt.KeysByRelational(rk, fk))
}

// ByRelational returns rows referencing fk through rk.
func ByRelational[Row any](tx *Tx, rk *RelationalKey, fk any) ([]*Row, error) {
	mt, err := openRead(tx, rk.model)
	if err != nil {
		return nil, err
	}
	return rowsByKeys[Row](mt)(mt.KeysByRelational(rk, fk))
}

// RelatedKeys returns the foreign keys referenced through rk by the row with primary key key.
func RelatedKeys[FK any](tx *Tx, rk *RelationalKey, key any) ([]FK, error) {
	mt, err := openRead(tx, rk.model)
	if err != nil {
		return nil, err
	}
	return typedKeys[FK](mt.RelatedKeys(rk, key))
}

// Subscribers returns primary keys of m's rows subscribed to topic.
func Subscribers[K any](tx *Tx, m *Model, topic *Topic) ([]K, error) {
	mt, err := openRead(tx, m)
	if err != nil {
		return nil, err
	}
	return typedKeys[K](mt.Subscribers(topic))
}

// TopicStateOf returns the accumulator of m's table for topic.
func TopicStateOf(tx *Tx, m *Model, topic *Topic) (TopicState, error) {
	mt, err := openRead(tx, m)
	if err != nil {
		return TopicState{}, err
	}
	return mt.TopicState(topic)
}

// KeysByHash returns primary keys of m's rows with the given content hash.
func KeysByHash[K any](tx *Tx, m *Model, hash [32]byte) ([]K, error) {
	mt, err := openRead(tx, m)
	if err != nil {
		return nil, err
	}
	return typedKeys[K](mt.KeysByHash(hash))
}

func typedKeys[K any](keys []any, err error) ([]K, error) {
	if err != nil {
		return nil, err
	}
	result := make([]K, 0, len(keys))
	for _, key := range keys {
		k, ok := key.(K)
		if !ok {
			var zero K
			return nil, fmt.Errorf("%w: key %v is %T, not %T", ErrConversion, key, key, zero)
		}
		result = append(result, k)
	}
	return result, nil
}

func rowsByKeys[Row any](mt *ModelTables) func(keys []any, err error) ([]*Row, error) {
	return func(keys []any, err error) ([]*Row, error) {
		if err != nil {
			return nil, err
		}
		rows := make([]*Row, 0, len(keys))
		for _, key := range keys {
			row, err := mt.Read(key)
			if err != nil {
				return nil, err
			}
			if row == nil {
				return nil, tableErrf(mt.main.name, fmt.Sprint(key), ErrNotFound, "index entry points at missing row")
			}
			r, ok := row.(*Row)
			if !ok {
				return nil, fmt.Errorf("%w: %s row is %T, not %T", ErrConversion, mt.model, row, (*Row)(nil))
			}
			rows = append(rows, r)
		}
		return rows, nil
	}
}
