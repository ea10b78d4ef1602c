package netabase

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"sync"
)

var (
	errNotWritable   = errors.New("tx not writable")
	errStorageClosed = errors.New("storage closed")
)

// memStorage keeps every table in memory. Committed tables are never
// modified in place: a write transaction copies a table the first time it
// touches it and commit publishes the new table map. Readers therefore see
// the snapshot that was current when they began. One writer at a time.
type memStorage struct {
	mu     sync.Mutex
	idle   *sync.Cond
	tables map[string]*memTable
	writer bool
	closed bool
}

func newMemStorage() *memStorage {
	s := &memStorage{tables: make(map[string]*memTable)}
	s.idle = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for writable && s.writer && !s.closed {
		s.idle.Wait()
	}
	if s.closed {
		return nil, errStorageClosed
	}
	tx := &memTx{base: s, writable: writable, tables: s.tables}
	if writable {
		s.writer = true
		tx.tables = maps.Clone(s.tables)
		tx.copied = make(map[string]bool)
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tables = nil
	s.idle.Broadcast()
	return nil
}

// memTable is a root table plus the tables nested in it.
type memTable struct {
	rows memRows
	subs map[string]*memRows
}

func (t *memTable) clone() *memTable {
	c := &memTable{rows: slices.Clone(t.rows)}
	if t.subs != nil {
		c.subs = make(map[string]*memRows, len(t.subs))
		for name, rows := range t.subs {
			cr := slices.Clone(*rows)
			c.subs[name] = &cr
		}
	}
	return c
}

type memKV struct {
	key   []byte
	value []byte
}

// memRows is sorted by key. Stored keys and values are private copies and
// are never mutated, so copying the slice is enough to copy the table.
type memRows []memKV

func (rows memRows) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(rows, key, func(kv memKV, k []byte) int {
		return bytes.Compare(kv.key, k)
	})
}

type memTx struct {
	base     *memStorage
	writable bool
	closed   bool
	tables   map[string]*memTable
	copied   map[string]bool
}

func (tx *memTx) Writable() bool { return tx.writable }
func (tx *memTx) Size() int64    { return 0 }

func (tx *memTx) ensureOpen() {
	if tx.closed {
		panic("tx is closed")
	}
}

// mutable returns a private copy of the named table, or nil.
func (tx *memTx) mutable(name string) *memTable {
	t := tx.tables[name]
	if t != nil && !tx.copied[name] {
		t = t.clone()
		tx.tables[name] = t
		tx.copied[name] = true
	}
	return t
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	tx.ensureOpen()
	t := tx.tables[name]
	if t == nil || (sub != "" && t.subs[sub] == nil) {
		return nil
	}
	return &memBucket{tx, name, sub}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	tx.ensureOpen()
	if !tx.writable {
		return nil, errNotWritable
	}
	t := tx.mutable(name)
	if t == nil {
		t = &memTable{}
		tx.tables[name] = t
		tx.copied[name] = true
	}
	if sub != "" && t.subs[sub] == nil {
		if t.subs == nil {
			t.subs = make(map[string]*memRows)
		}
		t.subs[sub] = &memRows{}
	}
	return &memBucket{tx, name, sub}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	tx.ensureOpen()
	if !tx.writable {
		return errNotWritable
	}
	if tx.tables[name] == nil {
		return errBucketNotFound
	}
	if sub == "" {
		delete(tx.tables, name)
		delete(tx.copied, name)
		return nil
	}
	t := tx.mutable(name)
	if t.subs[sub] == nil {
		return errBucketNotFound
	}
	delete(t.subs, sub)
	return nil
}

func (tx *memTx) ForEachBucket(f func(name string) error) error {
	for _, name := range slices.Sorted(maps.Keys(tx.tables)) {
		if err := f(name); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) ForEachSub(name string, f func(sub string) error) error {
	t := tx.tables[name]
	if t == nil {
		return nil
	}
	for _, sub := range slices.Sorted(maps.Keys(t.subs)) {
		if err := f(sub); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return errNotWritable
	}
	s := tx.base
	s.mu.Lock()
	defer s.mu.Unlock()
	defer tx.finishLocked()
	if s.closed {
		return errStorageClosed
	}
	s.tables = tx.tables
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.finishLocked()
	return nil
}

func (tx *memTx) finishLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.idle.Broadcast()
	}
}

// memBucket resolves its rows on every call, so a handle obtained before the
// transaction copied the table keeps working afterwards.
type memBucket struct {
	tx   *memTx
	name string
	sub  string
}

func (b *memBucket) rows(write bool) *memRows {
	var t *memTable
	if write {
		t = b.tx.mutable(b.name)
	} else {
		t = b.tx.tables[b.name]
	}
	switch {
	case t == nil:
		return nil
	case b.sub == "":
		return &t.rows
	default:
		return t.subs[b.sub]
	}
}

func (b *memBucket) Get(key []byte) []byte {
	rows := b.rows(false)
	if rows == nil {
		return nil
	}
	if i, found := rows.search(key); found {
		return (*rows)[i].value
	}
	return nil
}

func (b *memBucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return errNotWritable
	}
	rows := b.rows(true)
	if rows == nil {
		return errBucketNotFound
	}
	kv := memKV{slices.Clone(key), slices.Clone(value)}
	if kv.value == nil {
		kv.value = []byte{}
	}
	if i, found := rows.search(key); found {
		(*rows)[i] = kv
	} else {
		*rows = slices.Insert(*rows, i, kv)
	}
	return nil
}

func (b *memBucket) Delete(key []byte) error {
	if !b.tx.writable {
		return errNotWritable
	}
	rows := b.rows(true)
	if rows == nil {
		return nil
	}
	if i, found := rows.search(key); found {
		*rows = slices.Delete(*rows, i, i+1)
	}
	return nil
}

func (b *memBucket) Cursor() storageCursor {
	return &memCursor{b: b, off: true}
}

func (b *memBucket) Stats() bucketStats {
	var st bucketStats
	if rows := b.rows(false); rows != nil {
		st.KeyN = len(*rows)
		for _, kv := range *rows {
			st.LeafInuse += int64(len(kv.key) + len(kv.value))
		}
		st.LeafAlloc = st.LeafInuse
	}
	return st
}

// memCursor is a position in a memBucket. off means the cursor is not on a
// row: it was never positioned or it moved past either end.
type memCursor struct {
	b   *memBucket
	pos int
	off bool
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	var rows memRows
	if r := c.b.rows(false); r != nil {
		rows = *r
	}
	if pos < 0 || pos >= len(rows) {
		c.off = true
		return nil, nil
	}
	c.pos, c.off = pos, false
	return rows[pos].key, rows[pos].value
}

func (c *memCursor) len() int {
	if r := c.b.rows(false); r != nil {
		return len(*r)
	}
	return 0
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(c.len() - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	r := c.b.rows(false)
	if r == nil {
		return c.at(0)
	}
	i, _ := r.search(seek)
	return c.at(i)
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := prefixEnd(prefix)
	if limit == nil {
		return c.Last()
	}
	r := c.b.rows(false)
	if r == nil {
		return c.at(-1)
	}
	i, _ := r.search(limit)
	return c.at(i - 1)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.off {
		return nil, nil
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.off {
		return nil, nil
	}
	return c.at(c.pos - 1)
}
