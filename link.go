package netabase

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Link is a reference to a Row by primary key K, possibly in another
// Definition. A Link is either dehydrated (key only) or hydrated (key plus
// the loaded row). Only the key is ever serialized, so a decoded Link is
// always dehydrated; loading the row takes an explicit Hydrate call.
type Link[K any, Row any] struct {
	key K
	row *Row
}

// LinkTo returns a dehydrated link to key.
func LinkTo[K any, Row any](key K) Link[K, Row] {
	return Link[K, Row]{key: key}
}

// HydratedLink returns a link that already carries row.
func HydratedLink[K any, Row any](key K, row *Row) Link[K, Row] {
	return Link[K, Row]{key: key, row: row}
}

func (l Link[K, Row]) Key() K           { return l.key }
func (l Link[K, Row]) IsHydrated() bool { return l.row != nil }

// Row returns the loaded row, if any.
func (l Link[K, Row]) Row() (*Row, bool) {
	return l.row, l.row != nil
}

// MustRow returns the loaded row and panics on a dehydrated link.
func (l Link[K, Row]) MustRow() *Row {
	if l.row == nil {
		panic(fmt.Errorf("link to %v is not hydrated", l.key))
	}
	return l.row
}

// Dehydrate drops the loaded row, keeping only the key.
func (l Link[K, Row]) Dehydrate() Link[K, Row] {
	return Link[K, Row]{key: l.key}
}

func (l Link[K, Row]) String() string {
	if l.row != nil {
		return fmt.Sprintf("link(%v, hydrated)", l.key)
	}
	return fmt.Sprintf("link(%v)", l.key)
}

// Hydrate loads the target row through tx, which must be a transaction on
// the Definition that stores Row. from is the Definition holding the link.
// When grant is nil the transaction's own grant applies. Following a link
// into another Definition always needs a grant with Hydrate access to it.
//
// A missing target row returns an error wrapping ErrNotFound and leaves the
// link dehydrated.
func (l *Link[K, Row]) Hydrate(tx *Tx, from *Definition, grant *Grant) error {
	to := tx.Definition()
	m := to.ModelByRowType(reflect.TypeFor[*Row]())
	if m == nil {
		return fmt.Errorf("%w: %s has no model for %v", ErrDefinitionNotFound, to.name, reflect.TypeFor[Row]())
	}
	if grant == nil {
		grant = tx.grant
	}
	cross := from != nil && from != to
	if grant != nil || cross {
		if from == nil {
			from = to
		}
		if err := CheckHydrate(grant, from, to); err != nil {
			return err
		}
	}

	mt, err := tx.openModelTables(m, TablePermissions{}, cross)
	if err != nil {
		return err
	}
	row, err := mt.Read(l.key)
	if err != nil {
		return err
	}
	if row == nil {
		l.row = nil
		return tableErrf(m.MainTreeName(), fmt.Sprint(l.key), ErrNotFound, "link target missing")
	}
	l.row = row.(*Row)
	return nil
}

func (l Link[K, Row]) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(l.key)
}

func (l *Link[K, Row]) DecodeMsgpack(dec *msgpack.Decoder) error {
	l.row = nil
	return dec.Decode(&l.key)
}
