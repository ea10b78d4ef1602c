package netabase

import (
	"bytes"
	"reflect"
	"strings"

	"lukechampine.com/blake3"
)

// storedRow is the current record under a key, decoded without migration so
// that derived keys match what was indexed when it was written.
type storedRow struct {
	vle     value
	rowVal  reflect.Value
	entries []keyEntry
	hash    [32]byte
}

func (mt *ModelTables) loadStored(keyRaw []byte) (*storedRow, error) {
	m := mt.model
	raw := mt.main.get("", keyRaw)
	if raw == nil {
		return nil, nil
	}
	var old storedRow
	if err := old.vle.decode(raw); err != nil {
		return nil, tableErrf(mt.main.name, m.keyString(keyRaw), err, "decoding stored value")
	}
	rowVal, err := m.decodeRow(keyRaw, old.vle.Data)
	if err != nil {
		return nil, tableErrf(mt.main.name, m.keyString(keyRaw), err, "decoding stored row")
	}
	old.rowVal = rowVal
	old.entries = m.entries(rowVal)
	old.hash = blake3.Sum256(old.vle.Data)
	return &old, nil
}

// indexPlan lists every index change of one operation, so that permissions
// are checked for all touched tables before the first write.
type indexPlan struct {
	keyRaw  []byte
	removed []keyEntry
	added   []keyEntry
	kept    []keyEntry
	hasOld  bool
	hasNew  bool
	oldHash [32]byte
	newHash [32]byte
}

func (p *indexPlan) contentChanged() bool {
	return p.hasOld != p.hasNew || p.oldHash != p.newHash
}

func (mt *ModelTables) checkPlan(p *indexPlan) error {
	if err := mt.main.checkWritable(); err != nil {
		return err
	}
	for _, e := range p.removed {
		if err := mt.tableFor(e.family, e.pos).checkWritable(); err != nil {
			return err
		}
	}
	for _, e := range p.added {
		if err := mt.tableFor(e.family, e.pos).checkWritable(); err != nil {
			return err
		}
	}
	if p.contentChanged() {
		for _, e := range p.kept {
			if e.family == FamilySubscription {
				if err := mt.topics[e.pos].checkWritable(); err != nil {
					return err
				}
			}
		}
		if err := mt.hash.checkWritable(); err != nil {
			return err
		}
	}
	return nil
}

func (mt *ModelTables) applyPlan(p *indexPlan) error {
	keyRaw := p.keyRaw
	var topics = topicUpdates{mt: mt}

	for _, e := range p.removed {
		t := mt.tableFor(e.family, e.pos)
		if err := t.delete("", pair(e.value, keyRaw)); err != nil {
			return err
		}
		switch e.family {
		case FamilyRelational:
			if err := t.delete(subReverse, pair(keyRaw, e.value)); err != nil {
				return err
			}
		case FamilySubscription:
			if err := topics.remove(e.pos, keyRaw, p.oldHash); err != nil {
				return err
			}
		}
	}

	for _, e := range p.added {
		t := mt.tableFor(e.family, e.pos)
		if err := t.put("", pair(e.value, keyRaw), keyRaw); err != nil {
			return err
		}
		switch e.family {
		case FamilyRelational:
			if err := t.put(subReverse, pair(keyRaw, e.value), e.value); err != nil {
				return err
			}
		case FamilySubscription:
			if err := topics.add(e.pos, keyRaw, p.newHash); err != nil {
				return err
			}
		}
	}

	if p.contentChanged() {
		for _, e := range p.kept {
			if e.family == FamilySubscription {
				if err := topics.replace(e.pos, keyRaw, p.oldHash, p.newHash); err != nil {
					return err
				}
			}
		}
		if p.hasOld {
			if err := mt.hash.delete("", pair(p.oldHash[:], keyRaw)); err != nil {
				return err
			}
		}
		if p.hasNew {
			if err := mt.hash.put("", pair(p.newHash[:], keyRaw), keyRaw); err != nil {
				return err
			}
		}
	}

	return topics.save()
}

// Create inserts a row whose primary key is not yet present. An existing
// key fails with ErrKeyExists; use Update for upserts.
func (mt *ModelTables) Create(row any) error {
	return mt.put(row, true)
}

// Update replaces the row with the same primary key, touching only the
// index entries whose values changed. A missing row is created.
func (mt *ModelTables) Update(row any) error {
	return mt.put(row, false)
}

func (mt *ModelTables) put(row any, createOnly bool) error {
	m := mt.model
	tx := mt.tx
	rowVal := m.checkRow(row)
	if err := mt.main.checkWritable(); err != nil {
		return err
	}

	keyVal := m.rowKeyVal(rowVal)
	keyRaw := m.keyEnc.encode(nil, keyVal)

	old, err := mt.loadStored(keyRaw)
	if err != nil {
		return err
	}
	if old != nil && createOnly {
		return tableErrf(mt.main.name, m.keyString(keyRaw), ErrKeyExists, "")
	}

	data, err := m.encodeRow(rowVal)
	if err != nil {
		return tableErrf(mt.main.name, m.keyString(keyRaw), err, "")
	}

	if old != nil && old.vle.SchemaVer == m.latestSchemaVer && bytes.Equal(data, old.vle.Data) {
		if tx.store.verbose {
			tx.store.logf("db: UPDATE.NOOP %s/%v => m=%d %s", m.name, keyVal, old.vle.ModCount, loggableRowVal(m, rowVal))
		}
		return nil
	}

	plan := indexPlan{
		keyRaw:  keyRaw,
		hasNew:  true,
		newHash: blake3.Sum256(data),
	}
	newEntries := m.entries(rowVal)
	var modCount uint64 = 1
	if old != nil {
		plan.hasOld = true
		plan.oldHash = old.hash
		plan.removed, plan.added, plan.kept = diffEntries(old.entries, newEntries)
		modCount = old.vle.ModCount
		if !bytes.Equal(data, old.vle.Data) {
			modCount++
		}
	} else {
		plan.added = newEntries
	}

	if err := mt.checkPlan(&plan); err != nil {
		return err
	}
	if err := mt.main.put("", keyRaw, encodeValue(m.latestSchemaVer, modCount, data)); err != nil {
		return err
	}
	if err := mt.applyPlan(&plan); err != nil {
		return err
	}

	op, oldRowVal := OpCreate, reflect.Value{}
	if old != nil {
		op, oldRowVal = OpUpdate, old.rowVal
	}
	if tx.store.verbose {
		tx.store.logf("db: %s %s/%v => m=%d %s", strings.ToUpper(op.String()), m.name, keyVal, modCount, loggableRowVal(m, rowVal))
	}
	tx.notify(newChange(m, op, keyRaw, keyVal, rowVal, oldRowVal))
	return nil
}

// Delete removes the row and every index entry derived from the stored copy.
// Deleting a missing key is a successful no-op that returns false.
func (mt *ModelTables) Delete(key any) (bool, error) {
	m := mt.model
	tx := mt.tx
	keyRaw := m.EncodeKey(key)
	if err := mt.main.checkWritable(); err != nil {
		return false, err
	}

	old, err := mt.loadStored(keyRaw)
	if err != nil {
		return false, err
	}
	if old == nil {
		if tx.store.verbose {
			tx.store.logf("db: DELETE.NOOP %s/%v", m.name, key)
		}
		return false, nil
	}

	plan := indexPlan{
		keyRaw:  keyRaw,
		removed: old.entries,
		hasOld:  true,
		oldHash: old.hash,
	}
	if err := mt.checkPlan(&plan); err != nil {
		return false, err
	}
	if err := mt.main.delete("", keyRaw); err != nil {
		return false, err
	}
	if err := mt.applyPlan(&plan); err != nil {
		return false, err
	}

	if tx.store.verbose {
		tx.store.logf("db: DELETE %s/%v", m.name, key)
	}
	tx.notify(newChange(m, OpDelete, keyRaw, reflect.ValueOf(key), reflect.Value{}, old.rowVal))
	return true, nil
}

// Read returns the row stored under key, or nil if there is none. Rows
// written under an older schema version pass through the model's migrator.
func (mt *ModelTables) Read(key any) (any, error) {
	rowVal, _, err := mt.readVal(mt.model.EncodeKey(key))
	if err != nil || !rowVal.IsValid() {
		return nil, err
	}
	return rowVal.Interface(), nil
}

// ReadMeta is like Read but also returns the stored schema version and
// modification count.
func (mt *ModelTables) ReadMeta(key any) (any, ValueMeta, error) {
	rowVal, meta, err := mt.readVal(mt.model.EncodeKey(key))
	if err != nil || !rowVal.IsValid() {
		return nil, meta, err
	}
	return rowVal.Interface(), meta, nil
}

func (mt *ModelTables) readVal(keyRaw []byte) (reflect.Value, ValueMeta, error) {
	if err := mt.checkRead(); err != nil {
		return reflect.Value{}, ValueMeta{}, err
	}
	raw := mt.main.get("", keyRaw)
	if raw == nil {
		if mt.tx.store.verbose {
			mt.tx.store.logf("db: READ.NOTFOUND %s/%s", mt.model.name, mt.model.keyString(keyRaw))
		}
		return reflect.Value{}, ValueMeta{}, nil
	}
	return mt.decodeStored(keyRaw, raw)
}

func (mt *ModelTables) decodeStored(keyRaw, raw []byte) (reflect.Value, ValueMeta, error) {
	m := mt.model
	var vle value
	if err := vle.decode(raw); err != nil {
		return reflect.Value{}, ValueMeta{}, tableErrf(mt.main.name, m.keyString(keyRaw), err, "")
	}
	rowVal, err := m.decodeRow(keyRaw, vle.Data)
	if err != nil {
		return reflect.Value{}, ValueMeta{}, tableErrf(mt.main.name, m.keyString(keyRaw), err, "")
	}
	meta := vle.ValueMeta()
	if meta.SchemaVer < m.latestSchemaVer && m.migrator != nil {
		if err := m.migrator(mt.tx, rowVal.Interface(), meta.SchemaVer); err != nil {
			return reflect.Value{}, meta, tableErrf(mt.main.name, m.keyString(keyRaw), err, "migrating from v%d", meta.SchemaVer)
		}
	}
	return rowVal, meta, nil
}
