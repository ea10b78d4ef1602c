package netabase

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type (
	UserID  string
	ItemSKU string

	User struct {
		ID   UserID   `msgpack:"-"`
		Name string   `msgpack:"n"`
		Age  int      `msgpack:"a"`
		Tags []string `msgpack:"t,omitempty"`
	}

	Post struct {
		ID        uint64              `msgpack:"-"`
		Author    UserID              `msgpack:"au"`
		Title     string              `msgpack:"ti"`
		Published bool                `msgpack:"p"`
		Item      Link[ItemSKU, Item] `msgpack:"it"`
	}

	Item struct {
		SKU  ItemSKU `msgpack:"-"`
		Name string  `msgpack:"n"`
		Qty  int     `msgpack:"q"`
	}
)

var (
	usersDef     = NewDefinition("Users", DefinitionOpts{Version: 1})
	inventoryDef = NewDefinition("Inventory", DefinitionOpts{Version: 1})

	adultsTopic    = AddTopic(usersDef, "Adults")
	publishedTopic = AddTopic(usersDef, "Published")

	usersByName = AddSecondary[string]("Name")
	usersByAge  = AddSecondary[int]("Age")
	usersByTag  = AddSecondary[string]("Tag")
	userModel   = AddModel(usersDef, "User", 1, func(row *User, kb *KeyBuilder) {
		kb.Secondary(usersByName, row.Name)
		kb.Secondary(usersByAge, row.Age)
		for _, tag := range row.Tags {
			kb.Secondary(usersByTag, tag)
		}
		if row.Age >= 18 {
			kb.Subscribe(adultsTopic)
		}
	}, nil, []Key{usersByName, usersByAge, usersByTag, adultsTopic})

	postsByAuthor = AddRelational[UserID]("Author", usersDef, "User")
	postsByItem   = AddRelational[ItemSKU]("Item", inventoryDef, "Item")
	postModel     = AddModel(usersDef, "Post", 1, func(row *Post, kb *KeyBuilder) {
		kb.Relational(postsByAuthor, row.Author)
		if sku := row.Item.Key(); sku != "" {
			kb.Relational(postsByItem, sku)
		}
		if row.Published {
			kb.Subscribe(publishedTopic)
		}
	}, nil, []Key{postsByAuthor, postsByItem, publishedTopic})

	itemsByName = AddSecondary[string]("Name")
	itemModel   = AddModel(inventoryDef, "Item", 1, func(row *Item, kb *KeyBuilder) {
		kb.Secondary(itemsByName, row.Name)
	}, nil, []Key{itemsByName})
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

type backend struct {
	name string
	open func(t testing.TB, def *Definition) *Store
}

var backends = []backend{
	{"bolt", setup},
	{"memory", setupMemory},
}

func forEachBackend(t *testing.T, f func(t *testing.T, open func(t testing.TB, def *Definition) *Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			f(t, b.open)
		})
	}
}

func setup(t testing.TB, def *Definition) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), storeFileName)
	t.Logf("DB: %s", path)
	st := must(Open(path, def, Options{
		IsTesting: true,
		Verbose:   testing.Verbose(),
		Logf:      t.Logf,
	}))
	t.Cleanup(func() { st.Close() })
	return st
}

func setupMemory(t testing.TB, def *Definition) *Store {
	t.Helper()
	st := OpenMemory(def, Options{Verbose: testing.Verbose(), Logf: t.Logf})
	t.Cleanup(func() { st.Close() })
	return st
}

func write(t testing.TB, st *Store, f func(tx *Tx) error) {
	t.Helper()
	if err := st.Write(f); err != nil {
		t.Fatalf("** Write: %v", err)
	}
}

func read(t testing.TB, st *Store, f func(tx *Tx) error) {
	t.Helper()
	if err := st.Read(f); err != nil {
		t.Fatalf("** Read: %v", err)
	}
}

func ok(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func diff[T any](t testing.TB, a, e T, opts ...cmp.Option) {
	if d := cmp.Diff(e, a, opts...); d != "" {
		t.Helper()
		t.Errorf("** mismatch (-wanted +got):\n%s", d)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Errorf("** got nil %T, wanted non-nil", a)
	}
}

func TestStoreReadWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		u := &User{ID: "u1", Name: "Alice", Age: 30}

		write(t, st, func(tx *Tx) error {
			return Create(tx, u)
		})
		read(t, st, func(tx *Tx) error {
			deepEqual(t, must(Read[User](tx, UserID("u1"))), u)
			isnil(t, must(Read[User](tx, UserID("u2"))))
			return nil
		})

		if st.ReaderCount.Load() != 0 || st.WriterCount.Load() != 0 {
			t.Errorf("** open transactions after Read/Write: %s", st.DescribeOpenTxns())
		}
		deepEqual(t, st.DescribeOpenTxns(), "NO OPEN TRANSACTIONS")
	})
}

func TestStoreWriteRollsBackOnError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(t testing.TB, def *Definition) *Store) {
		st := open(t, usersDef)
		err := st.Write(func(tx *Tx) error {
			ok(t, Create(tx, &User{ID: "u1", Name: "Alice"}))
			return ErrNotFound
		})
		deepEqual(t, err, ErrNotFound)

		read(t, st, func(tx *Tx) error {
			isnil(t, must(Read[User](tx, UserID("u1"))))
			return nil
		})
	})
}

func TestStoreWriteRecoversPanics(t *testing.T) {
	st := setupMemory(t, usersDef)
	err := st.Write(func(tx *Tx) error {
		ok(t, Create(tx, &User{ID: "u1", Name: "Alice"}))
		panic(ErrConversion)
	})
	if err == nil || !strings.Contains(err.Error(), "panic:") {
		t.Fatalf("** Write = %v, wanted a panic error", err)
	}
	var p panicked
	if !asPanicked(err, &p) || p.Unwrap() != ErrConversion {
		t.Errorf("** Write error = %#v, wanted panicked wrapping ErrConversion", err)
	}
	read(t, st, func(tx *Tx) error {
		isnil(t, must(Read[User](tx, UserID("u1"))))
		return nil
	})
}

func asPanicked(err error, p *panicked) bool {
	v, found := err.(panicked)
	*p = v
	return found
}

func TestStoreReadTxCannotWrite(t *testing.T) {
	st := setupMemory(t, usersDef)
	err := st.Read(func(tx *Tx) error {
		return Create(tx, &User{ID: "u1"})
	})
	if !isPermissionDenied(err) {
		t.Fatalf("** Create in read tx = %v, wanted permission denied", err)
	}
}

func TestTxCommitTwice(t *testing.T) {
	st := setupMemory(t, usersDef)
	tx := must(st.BeginWrite())
	ok(t, tx.Commit())
	if err := tx.Commit(); err == nil {
		t.Fatalf("** second Commit succeeded, wanted an error")
	}
	tx.Close()

	rtx := must(st.BeginRead())
	ok(t, rtx.Commit())
	deepEqual(t, rtx.IsWritable(), false)
}
