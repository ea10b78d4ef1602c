package netabase

import (
	"fmt"
)

// Access is the mode a table is opened in.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "ro"
}

// TableGrant opens the tables of one key family as ReadWrite (or ReadOnly).
// An empty Name matches every discriminant of the family.
type TableGrant struct {
	Family Family
	Name   string
	Access Access
}

// TablePermissions says how to open a model's tables inside a write
// transaction. Derived tables not matched by a grant stay ReadOnly. The hash
// table follows Main.
type TablePermissions struct {
	Main   Access
	Grants []TableGrant
}

// AllReadWrite opens every table of a model for writing.
func AllReadWrite() TablePermissions {
	return TablePermissions{
		Main: ReadWrite,
		Grants: []TableGrant{
			{Family: FamilySecondary, Access: ReadWrite},
			{Family: FamilyRelational, Access: ReadWrite},
			{Family: FamilySubscription, Access: ReadWrite},
		},
	}
}

// MainOnly opens only the main (and hash) table for writing.
func MainOnly() TablePermissions {
	return TablePermissions{Main: ReadWrite}
}

func (perms TablePermissions) accessFor(family Family, name string) Access {
	result := ReadOnly
	for _, g := range perms.Grants {
		if g.Family == family && (g.Name == "" || g.Name == name) {
			result = g.Access
		}
	}
	return result
}

func (perms TablePermissions) wantsWrite() bool {
	if perms.Main == ReadWrite {
		return true
	}
	for _, g := range perms.Grants {
		if g.Access == ReadWrite {
			return true
		}
	}
	return false
}

// table is an opened handle on one named table.
type table struct {
	tx     *Tx
	name   string
	access Access
}

const (
	subReverse     = "rev"
	subAccumulator = "acc"
)

// bucket returns nil when the table does not exist yet.
func (t *table) bucket(sub string) storageBucket {
	t.tx.ensureOpen()
	return t.tx.stx.Bucket(t.name, sub)
}

func (t *table) checkWritable() error {
	if t.access != ReadWrite {
		return &PermissionError{Definition: t.tx.store.def.name, Table: t.name, Write: true, Reason: "table opened read-only"}
	}
	return nil
}

func (t *table) writableBucket(sub string) (storageBucket, error) {
	if err := t.checkWritable(); err != nil {
		return nil, err
	}
	b, err := t.tx.stx.CreateBucket(t.name, sub)
	if err != nil {
		return nil, tableErrf(t.name, "", wrapStorage("create table", err), "")
	}
	t.tx.markWritten()
	return b, nil
}

func (t *table) put(sub string, key, val []byte) error {
	b, err := t.writableBucket(sub)
	if err != nil {
		return err
	}
	if err := b.Put(key, val); err != nil {
		return tableErrf(t.name, fmt.Sprintf("%x", key), wrapStorage("put", err), "")
	}
	return nil
}

func (t *table) delete(sub string, key []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	b := t.bucket(sub)
	if b == nil {
		return nil
	}
	t.tx.markWritten()
	if err := b.Delete(key); err != nil {
		return tableErrf(t.name, fmt.Sprintf("%x", key), wrapStorage("delete", err), "")
	}
	return nil
}

func (t *table) get(sub string, key []byte) []byte {
	b := t.bucket(sub)
	if b == nil {
		return nil
	}
	return b.Get(key)
}

// ModelTables is the full table set of one Model bound to a transaction.
type ModelTables struct {
	tx          *Tx
	model       *Model
	canRead     bool
	main        *table
	hash        *table
	secondaries []*table
	relations   []*table
	topics      []*table
}

// OpenModelTables opens Main plus every derived table of m. Under a read
// transaction everything is ReadOnly. Under a write transaction each table
// gets the access perms assign it. When the transaction carries a Grant, it
// is checked before anything is opened.
func (tx *Tx) OpenModelTables(m *Model, perms TablePermissions) (*ModelTables, error) {
	return tx.openModelTables(m, perms, false)
}

// openModelTables with hydrating set skips the Definition coverage check;
// the caller has already applied CheckHydrate.
func (tx *Tx) openModelTables(m *Model, perms TablePermissions, hydrating bool) (*ModelTables, error) {
	tx.ensureOpen()
	if m.def != tx.store.def {
		return nil, fmt.Errorf("%w: model %s is not part of %s", ErrDefinitionNotFound, m, tx.store.def.name)
	}
	if !tx.writable {
		perms = TablePermissions{}
	}

	canRead := true
	if tx.grant != nil && !hydrating {
		write := perms.wantsWrite()
		if err := CheckPermission(tx.grant, m.def, write); err != nil {
			return nil, err
		}
		canRead = CheckPermission(tx.grant, m.def, false) == nil
	}

	mt := &ModelTables{
		tx:      tx,
		model:   m,
		canRead: canRead,
		main:    &table{tx, m.MainTreeName(), perms.Main},
		hash:    &table{tx, m.HashTreeName(), perms.Main},
	}
	for _, sk := range m.secondaries {
		mt.secondaries = append(mt.secondaries, &table{tx, m.SecondaryTreeName(sk), perms.accessFor(FamilySecondary, sk.name)})
	}
	for _, rk := range m.relations {
		mt.relations = append(mt.relations, &table{tx, m.RelationalTreeName(rk), perms.accessFor(FamilyRelational, rk.name)})
	}
	for _, topic := range m.topics {
		mt.topics = append(mt.topics, &table{tx, m.SubscriptionTreeName(topic), perms.accessFor(FamilySubscription, topic.name)})
	}
	return mt, nil
}

func (mt *ModelTables) Model() *Model { return mt.model }
func (mt *ModelTables) Tx() *Tx       { return mt.tx }

// Access reports how the named table of this model was opened.
func (mt *ModelTables) Access(treeName string) (Access, bool) {
	for _, t := range mt.all() {
		if t.name == treeName {
			return t.access, true
		}
	}
	return ReadOnly, false
}

func (mt *ModelTables) all() []*table {
	all := []*table{mt.main}
	all = append(all, mt.secondaries...)
	all = append(all, mt.relations...)
	all = append(all, mt.topics...)
	return append(all, mt.hash)
}

func (mt *ModelTables) tableFor(family Family, pos int) *table {
	switch family {
	case FamilySecondary:
		return mt.secondaries[pos]
	case FamilyRelational:
		return mt.relations[pos]
	case FamilySubscription:
		return mt.topics[pos]
	case familyHash:
		return mt.hash
	default:
		panic(fmt.Errorf("invalid family %v", family))
	}
}

func (mt *ModelTables) checkRead() error {
	if !mt.canRead {
		return &PermissionError{Definition: mt.model.def.name, Table: mt.model.name, Reason: "grant does not allow reads"}
	}
	return nil
}
