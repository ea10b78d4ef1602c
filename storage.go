package netabase

import "errors"

var errBucketNotFound = errors.New("bucket not found")

// storage is the ordered KV engine under a Store. Two implementations
// exist: a Bolt file and an in-memory copy-on-write map.
//
// Tables are named buckets. A bucket may hold nested buckets, addressed by
// (name, sub); sub == "" addresses the root bucket itself.
type storage interface {
	BeginTx(writable bool) (storageTx, error)
	Close() error
}

type storageTx interface {
	Writable() bool

	// Bucket returns nil when the bucket is missing.
	Bucket(name, sub string) storageBucket

	// CreateBucket opens the bucket, creating it and its root as needed.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket removes a root bucket together with its nested buckets,
	// or a single nested bucket. Missing buckets give errBucketNotFound.
	DeleteBucket(name, sub string) error

	// ForEachBucket visits root bucket names in key order.
	ForEachBucket(f func(name string) error) error
	ForEachSub(name string, f func(sub string) error) error

	Commit() error

	// Rollback may be called on a finished transaction.
	Rollback() error

	// Size is the file size in bytes, or 0 for in-memory storage.
	Size() int64
}

// storageBucket is one sorted table. Cursors of the Bolt implementation
// report nested buckets as keys with nil values.
type storageBucket interface {
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() storageCursor
	Stats() bucketStats
}

// bucketStats are sizes reported by the engine. The in-memory engine fills
// in KeyN and approximates the rest by payload size.
type bucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s bucketStats) TotalAlloc() int64 { return s.LeafAlloc + s.BranchAlloc }

// storageCursor walks one bucket in key order. Once a move runs off either
// end, Next and Prev return nil until First, Last, Seek or SeekLast
// repositions the cursor. So does Next or Prev on a fresh cursor.
type storageCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)

	// Seek positions on the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast positions on the last key starting with prefix or, when
	// there is none, on the closest key before them.
	SeekLast(prefix []byte) (key, value []byte)
}

// countEntries counts key-value pairs, skipping nested buckets.
func countEntries(b storageBucket) (n int) {
	if b == nil {
		return 0
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			n++
		}
	}
	return n
}
