package netabase

import (
	"errors"
	"testing"
)

func TestOpenModelTablesAccess(t *testing.T) {
	st := setupMemory(t, usersDef)

	write(t, st, func(tx *Tx) error {
		mt := must(tx.OpenModelTables(userModel, MainOnly()))
		for name, wanted := range map[string]Access{
			"User":            ReadWrite,
			"User_hash":       ReadWrite,
			"User_Name":       ReadOnly,
			"User_sub_Adults": ReadOnly,
		} {
			a, found := mt.Access(name)
			deepEqual(t, found, true)
			deepEqual(t, a, wanted)
		}
		_, found := mt.Access("Post")
		deepEqual(t, found, false)

		mt = must(tx.OpenModelTables(userModel, TablePermissions{
			Grants: []TableGrant{{Family: FamilySecondary, Name: "Age", Access: ReadWrite}},
		}))
		deepEqual(t, accessOf(t, mt, "User_Age"), ReadWrite)
		deepEqual(t, accessOf(t, mt, "User_Name"), ReadOnly)
		deepEqual(t, accessOf(t, mt, "User"), ReadOnly)
		return nil
	})

	read(t, st, func(tx *Tx) error {
		mt := must(tx.OpenModelTables(userModel, AllReadWrite()))
		deepEqual(t, accessOf(t, mt, "User"), ReadOnly)
		deepEqual(t, accessOf(t, mt, "User_Tag"), ReadOnly)
		return nil
	})
}

func TestWriteToReadOnlyDerivedTableIsDenied(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)

		err := st.Write(func(tx *Tx) error {
			mt := must(tx.OpenModelTables(userModel, MainOnly()))
			return mt.Create(&User{ID: "u1", Name: "Alice", Age: 30})
		})
		var pe *PermissionError
		if !errors.As(err, &pe) {
			t.Fatalf("** Create with read-only indexes = %v, wanted *PermissionError", err)
		}
		deepEqual(t, pe.Table, "User_Name")
		deepEqual(t, pe.Write, true)

		read(t, st, func(tx *Tx) error {
			isnil(t, must(Read[User](tx, UserID("u1"))))
			deepEqual(t, must(tx.TableNames()), []string(nil))
			return nil
		})
	})
}

func TestMainOnlyUpdateWithUnchangedIndexes(t *testing.T) {
	st := setupMemory(t, usersDef)
	write(t, st, func(tx *Tx) error {
		ok(t, Create(tx, &User{ID: "u1", Name: "Alice", Age: 12}))
		return Create(tx, &Post{ID: 1, Author: "u1", Title: "Draft"})
	})

	err := st.Write(func(tx *Tx) error {
		mt := must(tx.OpenModelTables(userModel, MainOnly()))
		return mt.Update(&User{ID: "u1", Name: "Alice", Age: 12, Tags: []string{"x"}})
	})
	if !isPermissionDenied(err) {
		t.Fatalf("** Update touching Tag index = %v, wanted permission denied", err)
	}

	// Title is not indexed, so only Main and the hash table change.
	write(t, st, func(tx *Tx) error {
		mt := must(tx.OpenModelTables(postModel, MainOnly()))
		return mt.Update(&Post{ID: 1, Author: "u1", Title: "Final"})
	})
	read(t, st, func(tx *Tx) error {
		deepEqual(t, must(Read[Post](tx, uint64(1))).Title, "Final")
		deepEqual(t, must(KeysByRelational[uint64](tx, postsByAuthor, UserID("u1"))), []uint64{1})
		return nil
	})

	// Publishing touches the topic table.
	err = st.Write(func(tx *Tx) error {
		mt := must(tx.OpenModelTables(postModel, MainOnly()))
		return mt.Update(&Post{ID: 1, Author: "u1", Title: "Final", Published: true})
	})
	if !isPermissionDenied(err) {
		t.Fatalf("** Update subscribing to a topic = %v, wanted permission denied", err)
	}
}

func TestOpenModelTablesChecksGrant(t *testing.T) {
	st := setupMemory(t, usersDef)
	write(t, st, func(tx *Tx) error {
		return Create(tx, &User{ID: "u1", Name: "Alice", Age: 30})
	})

	write(t, st, func(tx *Tx) error {
		tx.grant = ReadGrant("Users")
		_, err := tx.OpenModelTables(userModel, AllReadWrite())
		if !isPermissionDenied(err) {
			t.Errorf("** OpenModelTables(rw) with read grant = %v, wanted permission denied", err)
		}
		mt := must(tx.OpenModelTables(userModel, TablePermissions{}))
		u := must(mt.Read(UserID("u1")))
		deepEqual(t, u.(*User).Name, "Alice")

		tx.grant = ReadGrant("Inventory")
		_, err = tx.OpenModelTables(userModel, TablePermissions{})
		if !isPermissionDenied(err) {
			t.Errorf("** OpenModelTables with uncovered grant = %v, wanted permission denied", err)
		}

		tx.grant = &Grant{Level: LevelWrite, Definitions: []string{"Users"}}
		mt = must(tx.OpenModelTables(userModel, AllReadWrite()))
		_, err = mt.Read(UserID("u1"))
		if !isPermissionDenied(err) {
			t.Errorf("** Read with write-only grant = %v, wanted permission denied", err)
		}
		ok(t, mt.Update(&User{ID: "u1", Name: "Alicia", Age: 30}))
		return nil
	})
}

func TestOpenModelTablesRejectsForeignModel(t *testing.T) {
	st := setupMemory(t, usersDef)
	read(t, st, func(tx *Tx) error {
		_, err := tx.OpenModelTables(itemModel, TablePermissions{})
		if !errors.Is(err, ErrDefinitionNotFound) {
			t.Errorf("** OpenModelTables(itemModel) = %v, wanted ErrDefinitionNotFound", err)
		}
		return nil
	})
}

func accessOf(t testing.TB, mt *ModelTables, name string) Access {
	t.Helper()
	a, found := mt.Access(name)
	if !found {
		t.Fatalf("** no table %s in %v", name, mt.Model())
	}
	return a
}
