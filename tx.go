package netabase

import (
	"fmt"
	"time"
)

// Tx is a read or write transaction on one Store. A Tx is not safe for
// concurrent use.
type Tx struct {
	store    *Store
	stx      storageTx
	writable bool
	closed   bool
	written  bool

	// grant restricts what the transaction may touch; nil means unrestricted.
	grant *Grant

	changeHandler func(chg *Change)

	began time.Time
	stack string
}

func (tx *Tx) Store() *Store           { return tx.store }
func (tx *Tx) Definition() *Definition { return tx.store.def }
func (tx *Tx) IsWritable() bool        { return tx.writable }
func (tx *Tx) Grant() *Grant           { return tx.grant }

// HasWrites reports whether anything was stored, deleted or dropped so far.
func (tx *Tx) HasWrites() bool { return tx.written }

// OnChange registers f to be called after every successful create, update
// or delete in this transaction.
func (tx *Tx) OnChange(f func(chg *Change)) {
	tx.changeHandler = f
}

func (tx *Tx) markWritten() {
	tx.written = true
}

func (tx *Tx) ensureOpen() {
	if tx.closed {
		panic(fmt.Errorf("%s: transaction already closed", tx.store.def.name))
	}
}

// Commit makes the writes durable. A read transaction, or a write
// transaction that wrote nothing, is simply released.
func (tx *Tx) Commit() error {
	name := tx.store.def.name
	if tx.closed {
		return fmt.Errorf("%s: commit: %w", name, errTxClosed)
	}
	if !tx.written {
		tx.Close()
		return nil
	}
	err := tx.stx.Commit()
	tx.finish()
	return wrapStorage("commit "+name, err)
}

// Rollback aborts the transaction, discarding all writes.
func (tx *Tx) Rollback() error {
	if tx.closed {
		return nil
	}
	err := tx.stx.Rollback()
	tx.finish()
	return wrapStorage("rollback "+tx.store.def.name, err)
}

// Close rolls back unless already committed; safe to defer.
func (tx *Tx) Close() {
	if err := tx.Rollback(); err != nil {
		tx.store.logf("netabase: %v", err)
	}
}

func (tx *Tx) finish() {
	tx.closed = true
	tx.store.txDone(tx)
}
