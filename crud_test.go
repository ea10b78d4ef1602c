package netabase

import (
	"errors"
	"strings"
	"testing"
)

func TestCRUDRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		u1 := &User{ID: "u1", Name: "Alice", Age: 30, Tags: []string{"admin", "ops"}}
		u2 := &User{ID: "u2", Name: "Bob", Age: 12}
		p1 := &Post{ID: 1, Author: "u1", Title: "Hello", Published: true}

		write(t, st, func(tx *Tx) error {
			ok(t, Create(tx, u1))
			ok(t, Create(tx, u2))
			return Create(tx, p1)
		})

		read(t, st, func(tx *Tx) error {
			deepEqual(t, must(Read[User](tx, UserID("u1"))), u1)
			deepEqual(t, must(Read[User](tx, UserID("u2"))), u2)
			deepEqual(t, must(Read[Post](tx, uint64(1))), p1)

			deepEqual(t, must(List[User](tx)), []*User{u1, u2})
			deepEqual(t, must(Count[User](tx)), 2)
			deepEqual(t, must(Count[Post](tx)), 1)

			deepEqual(t, must(KeysBySecondary[UserID](tx, usersByName, "Alice")), []UserID{"u1"})
			deepEqual(t, must(BySecondary[User](tx, usersByAge, 12)), []*User{u2})
			deepEqual(t, must(KeysBySecondary[UserID](tx, usersByTag, "ops")), []UserID{"u1"})
			deepEqual(t, must(KeysByRelational[uint64](tx, postsByAuthor, UserID("u1"))), []uint64{1})
			deepEqual(t, must(ByRelational[Post](tx, postsByAuthor, UserID("u1"))), []*Post{p1})
			deepEqual(t, must(RelatedKeys[UserID](tx, postsByAuthor, uint64(1))), []UserID{"u1"})
			deepEqual(t, must(Subscribers[UserID](tx, userModel, adultsTopic)), []UserID{"u1"})
			deepEqual(t, must(Subscribers[uint64](tx, postModel, publishedTopic)), []uint64{1})

			hash := must(userModel.ContentHash(u1))
			deepEqual(t, must(KeysByHash[UserID](tx, userModel, hash)), []UserID{"u1"})
			return nil
		})
	})
}

func TestCRUDScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)

		alice := &User{ID: "u1", Name: "Alice", Age: 30}
		write(t, st, func(tx *Tx) error {
			return Create(tx, alice)
		})
		read(t, st, func(tx *Tx) error {
			deepEqual(t, must(Read[User](tx, UserID("u1"))), alice)
			return nil
		})

		bob := &User{ID: "u1", Name: "Bob", Age: 30}
		write(t, st, func(tx *Tx) error {
			return Update(tx, bob)
		})
		read(t, st, func(tx *Tx) error {
			isempty(t, must(KeysBySecondary[UserID](tx, usersByName, "Alice")))
			deepEqual(t, must(KeysBySecondary[UserID](tx, usersByName, "Bob")), []UserID{"u1"})
			deepEqual(t, must(KeysBySecondary[UserID](tx, usersByAge, 30)), []UserID{"u1"})
			return nil
		})

		write(t, st, func(tx *Tx) error {
			found, err := Delete[User](tx, UserID("u1"))
			deepEqual(t, found, true)
			return err
		})
		read(t, st, func(tx *Tx) error {
			isnil(t, must(Read[User](tx, UserID("u1"))))
			isempty(t, must(KeysBySecondary[UserID](tx, usersByName, "Bob")))
			return nil
		})
	})
}

func TestCreateExistingKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		write(t, st, func(tx *Tx) error {
			return Create(tx, &User{ID: "u1", Name: "Alice"})
		})
		err := st.Write(func(tx *Tx) error {
			return Create(tx, &User{ID: "u1", Name: "Mallory"})
		})
		if !errors.Is(err, ErrKeyExists) {
			t.Fatalf("** duplicate Create = %v, wanted ErrKeyExists", err)
		}
		var te *TableError
		if !errors.As(err, &te) || te.Table != "User" || te.Key != "u1" {
			t.Errorf("** duplicate Create = %#v, wanted TableError for User/u1", err)
		}
		read(t, st, func(tx *Tx) error {
			deepEqual(t, must(Read[User](tx, UserID("u1"))).Name, "Alice")
			isempty(t, must(KeysBySecondary[UserID](tx, usersByName, "Mallory")))
			return nil
		})
	})
}

func TestUpdateDiff(t *testing.T) {
	st := setup(t, usersDef)
	write(t, st, func(tx *Tx) error {
		return Create(tx, &User{ID: "u1", Name: "Alice", Age: 30, Tags: []string{"a", "b", "b"}})
	})
	write(t, st, func(tx *Tx) error {
		return Update(tx, &User{ID: "u1", Name: "Alice", Age: 31, Tags: []string{"b", "c"}})
	})
	read(t, st, func(tx *Tx) error {
		isempty(t, must(KeysBySecondary[UserID](tx, usersByAge, 30)))
		deepEqual(t, must(KeysBySecondary[UserID](tx, usersByAge, 31)), []UserID{"u1"})
		isempty(t, must(KeysBySecondary[UserID](tx, usersByTag, "a")))
		deepEqual(t, must(KeysBySecondary[UserID](tx, usersByTag, "b")), []UserID{"u1"})
		deepEqual(t, must(KeysBySecondary[UserID](tx, usersByTag, "c")), []UserID{"u1"})
		deepEqual(t, must(KeysBySecondary[UserID](tx, usersByName, "Alice")), []UserID{"u1"})

		s := must(tx.Stats(userModel))
		deepEqual(t, s.Rows, 1)
		// Name, Age, two tags, one topic entry and one hash entry.
		deepEqual(t, s.IndexRows, 6)
		return nil
	})
}

func TestUpdateModCountAndNoop(t *testing.T) {
	st := setupMemory(t, usersDef)
	u := &User{ID: "u1", Name: "Alice", Age: 30}
	var changes []Op

	meta := func() ValueMeta {
		var vm ValueMeta
		read(t, st, func(tx *Tx) error {
			mt := must(tx.OpenModelTables(userModel, TablePermissions{}))
			_, vm, _ = mt.ReadMeta(UserID("u1"))
			return nil
		})
		return vm
	}

	write(t, st, func(tx *Tx) error {
		tx.OnChange(func(chg *Change) { changes = append(changes, chg.Op()) })
		return Create(tx, u)
	})
	deepEqual(t, meta(), ValueMeta{SchemaVer: 1, ModCount: 1})

	write(t, st, func(tx *Tx) error {
		tx.OnChange(func(chg *Change) { changes = append(changes, chg.Op()) })
		return Update(tx, &User{ID: "u1", Name: "Alice", Age: 30})
	})
	deepEqual(t, meta(), ValueMeta{SchemaVer: 1, ModCount: 1})

	write(t, st, func(tx *Tx) error {
		tx.OnChange(func(chg *Change) {
			changes = append(changes, chg.Op())
			deepEqual(t, chg.OldRow().(*User).Name, "Alice")
			deepEqual(t, chg.Row().(*User).Name, "Alicia")
		})
		return Upsert(tx, &User{ID: "u1", Name: "Alicia", Age: 30})
	})
	deepEqual(t, meta(), ValueMeta{SchemaVer: 1, ModCount: 2})
	deepEqual(t, changes, []Op{OpCreate, OpUpdate})
}

func TestDeleteCleansIndexes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		write(t, st, func(tx *Tx) error {
			ok(t, Create(tx, &User{ID: "u1", Name: "Alice", Age: 40, Tags: []string{"x"}}))
			return Create(tx, &Post{ID: 7, Author: "u1", Published: true, Item: LinkTo[ItemSKU, Item]("sku-1")})
		})
		write(t, st, func(tx *Tx) error {
			deepEqual(t, must(Delete[User](tx, UserID("u1"))), true)
			deepEqual(t, must(Delete[Post](tx, uint64(7))), true)
			return nil
		})
		read(t, st, func(tx *Tx) error {
			isempty(t, must(KeysBySecondary[UserID](tx, usersByName, "Alice")))
			isempty(t, must(KeysBySecondary[UserID](tx, usersByAge, 40)))
			isempty(t, must(KeysBySecondary[UserID](tx, usersByTag, "x")))
			isempty(t, must(Subscribers[UserID](tx, userModel, adultsTopic)))
			isempty(t, must(KeysByRelational[uint64](tx, postsByAuthor, UserID("u1"))))
			isempty(t, must(KeysByRelational[uint64](tx, postsByItem, ItemSKU("sku-1"))))
			isempty(t, must(RelatedKeys[UserID](tx, postsByAuthor, uint64(7))))
			isempty(t, must(Subscribers[uint64](tx, postModel, publishedTopic)))

			for _, m := range []*Model{userModel, postModel} {
				s := must(tx.Stats(m))
				if s.Rows != 0 || s.IndexRows != 0 {
					t.Errorf("** %s stats after delete = %+v, wanted no rows", m, s)
				}
			}
			return nil
		})
	})
}

func TestDeleteAbsentKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		write(t, st, func(tx *Tx) error {
			var called bool
			tx.OnChange(func(chg *Change) { called = true })
			found, err := Delete[User](tx, UserID("nobody"))
			deepEqual(t, found, false)
			deepEqual(t, called, false)
			return err
		})
	})
}

func TestMissingTablesReadAsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		read(t, st, func(tx *Tx) error {
			isempty(t, must(List[User](tx)))
			deepEqual(t, must(Count[Post](tx)), 0)
			isempty(t, must(KeysBySecondary[UserID](tx, usersByName, "Alice")))
			isempty(t, must(Subscribers[UserID](tx, userModel, adultsTopic)))
			deepEqual(t, must(TopicStateOf(tx, userModel, adultsTopic)).IsEmpty(), true)
			isempty(t, must(tx.TableNames()))
			return nil
		})
	})
}

func TestScanRanges(t *testing.T) {
	st := setup(t, usersDef)
	var posts []*Post
	write(t, st, func(tx *Tx) error {
		for i := uint64(1); i <= 5; i++ {
			p := &Post{ID: i, Author: "u1", Title: "p"}
			posts = append(posts, p)
			ok(t, Create(tx, p))
		}
		return nil
	})
	k := postModel.EncodeKey
	read(t, st, func(tx *Tx) error {
		deepEqual(t, must(Scan[Post](tx, RawOO())), posts)
		deepEqual(t, must(Scan[Post](tx, RawOO().Reversed())), []*Post{posts[4], posts[3], posts[2], posts[1], posts[0]})
		deepEqual(t, must(Scan[Post](tx, RawIE(k(uint64(2)), k(uint64(4))))), posts[1:3])
		deepEqual(t, must(Scan[Post](tx, RawEI(k(uint64(2)), k(uint64(4))))), posts[2:4])
		deepEqual(t, must(Scan[Post](tx, RawII(k(uint64(2)), k(uint64(4))).Reversed())), []*Post{posts[3], posts[2], posts[1]})
		deepEqual(t, must(Scan[Post](tx, RawOE(k(uint64(3))))), posts[:2])
		return nil
	})
}

type legacyUser struct {
	ID   UserID `msgpack:"-"`
	Name string `msgpack:"n"`
}

type migratedUser struct {
	ID        UserID `msgpack:"-"`
	Name      string `msgpack:"n"`
	FirstName string `msgpack:"fn"`
}

func TestMigratorRunsOnOldRows(t *testing.T) {
	path := t.TempDir() + "/" + storeFileName

	v1 := NewDefinition("Accounts", DefinitionOpts{})
	AddModel[legacyUser](v1, "Account", 1, nil, nil, nil)
	st := must(Open(path, v1, Options{IsTesting: true}))
	write(t, st, func(tx *Tx) error {
		return Create(tx, &legacyUser{ID: "a1", Name: "Ada Lovelace"})
	})
	ok(t, st.Close())

	v2 := NewDefinition("Accounts", DefinitionOpts{})
	var migratedFrom uint64
	AddModel(v2, "Account", 2, nil, func(tx *Tx, row *migratedUser, oldVer uint64) error {
		migratedFrom = oldVer
		row.FirstName, _, _ = strings.Cut(row.Name, " ")
		return nil
	}, nil)
	st = must(Open(path, v2, Options{IsTesting: true}))
	defer st.Close()
	read(t, st, func(tx *Tx) error {
		deepEqual(t, must(Read[migratedUser](tx, UserID("a1"))), &migratedUser{ID: "a1", Name: "Ada Lovelace", FirstName: "Ada"})
		return nil
	})
	deepEqual(t, migratedFrom, 1)

	write(t, st, func(tx *Tx) error {
		return Update(tx, must(Read[migratedUser](tx, UserID("a1"))))
	})
	migratedFrom = 0
	read(t, st, func(tx *Tx) error {
		mt := must(tx.OpenModelTables(v2.ModelNamed("Account"), TablePermissions{}))
		_, vm, err := mt.ReadMeta(UserID("a1"))
		deepEqual(t, vm, ValueMeta{SchemaVer: 2, ModCount: 2})
		return err
	})
	deepEqual(t, migratedFrom, 0)
}
