package netabase

import (
	"errors"
	"os"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

const (
	defaultBoltTimeout  = 10 * time.Second
	defaultBoltMmapSize = 64 << 20
	testingBoltMmapSize = 5 << 20
	defaultFileMode     = 0o666
)

// boltStorage maps every table to a root Bolt bucket; the nested tables of
// a table (reverse relations, topic accumulators) are Bolt sub-buckets.
type boltStorage struct {
	db *bbolt.DB
}

func boltOptions(opt Options, readOnly bool) *bbolt.Options {
	bopt := *bbolt.DefaultOptions
	bopt.ReadOnly = readOnly
	bopt.Timeout = defaultBoltTimeout
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = testingBoltMmapSize
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
		bopt.InitialMmapSize = defaultBoltMmapSize
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	return &bopt
}

func openBoltStorage(path string, opt Options, readOnly bool) (*boltStorage, error) {
	mode := os.FileMode(opt.FileMode)
	if mode == 0 {
		mode = defaultFileMode
	}
	db, err := bbolt.Open(path, mode, boltOptions(opt, readOnly))
	if err != nil {
		return nil, wrapStorage("open "+path, err)
	}
	return &boltStorage{db}, nil
}

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return boltTx{btx}, nil
}

func (s *boltStorage) Close() error {
	return s.db.Close()
}

type boltTx struct {
	*bbolt.Tx
}

// nameBytes avoids copying table names on lookups. Bolt copies keys it
// stores, so this must not be used for bucket creation.
func nameBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (tx boltTx) Bucket(name, sub string) storageBucket {
	b := tx.Tx.Bucket(nameBytes(name))
	if b != nil && sub != "" {
		b = b.Bucket(nameBytes(sub))
	}
	if b == nil {
		return nil
	}
	return boltBucket{b}
}

func (tx boltTx) CreateBucket(name, sub string) (storageBucket, error) {
	b, err := tx.CreateBucketIfNotExists([]byte(name))
	if err == nil && sub != "" {
		b, err = b.CreateBucketIfNotExists([]byte(sub))
	}
	if err != nil {
		return nil, err
	}
	return boltBucket{b}, nil
}

func (tx boltTx) DeleteBucket(name, sub string) error {
	var err error
	if sub == "" {
		err = tx.Tx.DeleteBucket(nameBytes(name))
	} else if parent := tx.Tx.Bucket(nameBytes(name)); parent != nil {
		err = parent.DeleteBucket(nameBytes(sub))
	} else {
		err = bbolt.ErrBucketNotFound
	}
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return errBucketNotFound
	}
	return err
}

func (tx boltTx) ForEachBucket(f func(name string) error) error {
	return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		return f(string(name))
	})
}

func (tx boltTx) ForEachSub(name string, f func(sub string) error) error {
	parent := tx.Tx.Bucket(nameBytes(name))
	if parent == nil {
		return nil
	}
	c := parent.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			continue
		}
		if err := f(string(k)); err != nil {
			return err
		}
	}
	return nil
}

func (tx boltTx) Rollback() error {
	if err := tx.Tx.Rollback(); !errors.Is(err, bbolt.ErrTxClosed) {
		return err
	}
	return nil
}

func (tx boltTx) Size() int64 { return tx.Tx.Size() }

type boltBucket struct {
	*bbolt.Bucket
}

func (b boltBucket) Cursor() storageCursor {
	return &boltCursor{c: b.Bucket.Cursor(), off: true}
}

func (b boltBucket) Stats() bucketStats {
	s := b.Bucket.Stats()
	return bucketStats{
		KeyN:        s.KeyN,
		LeafInuse:   int64(s.LeafInuse),
		LeafAlloc:   int64(s.LeafAlloc),
		BranchAlloc: int64(s.BranchAlloc),
	}
}

// boltCursor stops at either end: once a move returns nil, Next and Prev
// keep returning nil until the cursor is repositioned. A bare bbolt cursor
// stays on the last element after running off the end.
type boltCursor struct {
	c   *bbolt.Cursor
	off bool
}

func (c *boltCursor) track(k, v []byte) ([]byte, []byte) {
	c.off = k == nil
	return k, v
}

func (c *boltCursor) First() ([]byte, []byte) { return c.track(c.c.First()) }
func (c *boltCursor) Last() ([]byte, []byte)  { return c.track(c.c.Last()) }

func (c *boltCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.track(c.c.Seek(seek))
}

func (c *boltCursor) Next() ([]byte, []byte) {
	if c.off {
		return nil, nil
	}
	return c.track(c.c.Next())
}

func (c *boltCursor) Prev() ([]byte, []byte) {
	if c.off {
		return nil, nil
	}
	return c.track(c.c.Prev())
}

// SeekLast positions on the last key starting with prefix, or on the key
// just before where such keys would go.
func (c *boltCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := prefixEnd(prefix)
	if limit == nil {
		// Nothing sorts after an all-0xFF prefix except its own extensions.
		return c.Last()
	}
	if k, _ := c.c.Seek(limit); k == nil {
		return c.Last()
	}
	return c.track(c.c.Prev())
}
