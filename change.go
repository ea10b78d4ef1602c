package netabase

import (
	"fmt"
	"reflect"
)

// Op is the kind of write a Change reports.
type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

var opNames = [...]string{OpCreate: "create", OpUpdate: "update", OpDelete: "delete"}

func (op Op) String() string {
	if op > 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Change describes one successful write, delivered to the handler set by
// Tx.OnChange. Row is nil for deletes; OldRow is nil for creates.
type Change struct {
	model  *Model
	op     Op
	rawKey []byte
	key    any
	row    any
	oldRow any
}

func newChange(m *Model, op Op, rawKey []byte, keyVal, rowVal, oldRowVal reflect.Value) *Change {
	return &Change{
		model:  m,
		op:     op,
		rawKey: rawKey,
		key:    interfaceOf(keyVal),
		row:    interfaceOf(rowVal),
		oldRow: interfaceOf(oldRowVal),
	}
}

func (c *Change) Model() *Model   { return c.model }
func (c *Change) Op() Op          { return c.op }
func (c *Change) RawKey() []byte  { return c.rawKey }
func (c *Change) Key() any        { return c.key }
func (c *Change) Row() any        { return c.row }
func (c *Change) OldRow() any     { return c.oldRow }
func (c *Change) HasRow() bool    { return c.row != nil }
func (c *Change) HasOldRow() bool { return c.oldRow != nil }

func (c *Change) String() string {
	return fmt.Sprintf("%v %s/%v", c.op, c.model.name, c.key)
}

func (tx *Tx) notify(c *Change) {
	if tx.changeHandler != nil {
		tx.changeHandler(c)
	}
}

func interfaceOf(val reflect.Value) any {
	if !val.IsValid() {
		return nil
	}
	return val.Interface()
}
