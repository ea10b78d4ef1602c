package netabase

import (
	"errors"
	"fmt"
)

// ManagerTx spans several Definitions of one Manager. Each Definition gets
// its own store transaction, opened on first use.
//
// There is no atomicity across Definitions: a write commits each touched
// Definition in turn, so a failure part way through leaves the earlier
// commits in place.
type ManagerTx struct {
	mgr      *Manager
	grant    *Grant
	writable bool
	txs      []*Tx
}

func (mtx *ManagerTx) Manager() *Manager { return mtx.mgr }
func (mtx *ManagerTx) Grant() *Grant     { return mtx.grant }
func (mtx *ManagerTx) IsWritable() bool  { return mtx.writable }

// Read runs f with read access to any Definition grant allows. Touched
// Definitions stay loaded afterwards, but their access marks are cleared,
// so the next Write unloads them unless it touches them too.
func (mgr *Manager) Read(grant *Grant, f func(mtx *ManagerTx) error) error {
	mtx := &ManagerTx{mgr: mgr, grant: grant}
	defer mgr.ClearAccessed()
	defer mtx.close()
	return safelyCall(f, mtx)
}

// Write runs f with write access and commits every touched Definition when
// f returns nil. Afterwards Definitions the transaction did not touch are
// unloaded unless pinned warm.
//
// Definitions commit one after another, in the order f first touched them.
// There is no atomicity across Definitions: if a commit fails, the ones
// before it stay committed.
func (mgr *Manager) Write(grant *Grant, f func(mtx *ManagerTx) error) error {
	mtx := &ManagerTx{mgr: mgr, grant: grant, writable: true}
	err := safelyCall(f, mtx)
	if err == nil {
		err = mtx.commit()
	}
	mtx.close()

	_, unloadErr := mgr.UnloadUnused()
	mgr.ClearAccessed()
	if unloadErr != nil {
		return errors.Join(err, unloadErr)
	}
	return err
}

// Definition runs f inside def's transaction, loading def if needed. The
// grant is checked before anything is loaded, and stays attached to the
// transaction so every table open is checked again.
func (mtx *ManagerTx) Definition(def *Definition, f func(tx *Tx) error) error {
	tx, err := mtx.txFor(def, func() error {
		err := CheckPermission(mtx.grant, def, false)
		if err != nil && mtx.writable {
			err = CheckPermission(mtx.grant, def, true)
		}
		return err
	})
	if err != nil {
		return err
	}
	return f(tx)
}

// HydrateLink loads link's target row from the Definition to, on behalf of a
// row stored in from. A grant with Hydrate access to to is enough even when
// it does not otherwise cover to.
func HydrateLink[K any, Row any](mtx *ManagerTx, from, to *Definition, link *Link[K, Row]) error {
	tx, err := mtx.txFor(to, func() error {
		return CheckHydrate(mtx.grant, from, to)
	})
	if err != nil {
		return err
	}
	return link.Hydrate(tx, from, mtx.grant)
}

func (mtx *ManagerTx) txFor(def *Definition, check func() error) (*Tx, error) {
	mgr := mtx.mgr
	if _, err := mgr.link(def); err != nil {
		return nil, err
	}
	if err := check(); err != nil {
		return nil, err
	}
	if tx := mtx.Tx(def); tx != nil {
		return tx, nil
	}

	if err := mgr.LoadDefinition(def); err != nil {
		return nil, err
	}
	mgr.MarkAccessed(def)

	st := mgr.MustStore(def)
	var tx *Tx
	var err error
	if mtx.writable {
		tx, err = st.BeginWrite()
	} else {
		tx, err = st.BeginRead()
	}
	if err != nil {
		return nil, err
	}
	tx.grant = mtx.grant
	mtx.txs = append(mtx.txs, tx)
	return tx, nil
}

// Tx returns the transaction already opened for def, or nil.
func (mtx *ManagerTx) Tx(def *Definition) *Tx {
	for _, tx := range mtx.txs {
		if tx.store.def == def {
			return tx
		}
	}
	return nil
}

func (mtx *ManagerTx) commit() error {
	for _, tx := range mtx.txs {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", tx.store.def.name, err)
		}
	}
	return nil
}

func (mtx *ManagerTx) close() {
	for _, tx := range mtx.txs {
		tx.Close()
	}
	mtx.txs = nil
}
