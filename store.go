package netabase

import (
	"fmt"
	"log"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const trackTxns = true

// Store is the backing store of one Definition.
type Store struct {
	storage storage
	def     *Definition
	path    string
	logf    func(format string, args ...any)
	verbose bool

	ReaderCount atomic.Int64
	WriterCount atomic.Int64
	ReadCount   atomic.Uint64
	WriteCount  atomic.Uint64

	openMu sync.Mutex
	open   map[*Tx]struct{}
}

type Options struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool
	MmapSize  int
	Timeout   time.Duration
	FileMode  uint32

	// InMemory makes Open ignore path and keep data in memory.
	InMemory bool
}

// Open opens or creates the Bolt file at path. Tables are created lazily
// by the first write that needs them.
func Open(path string, def *Definition, opt Options) (*Store, error) {
	if opt.InMemory {
		return OpenMemory(def, opt), nil
	}
	bs, err := openBoltStorage(path, opt, false)
	if err != nil {
		return nil, err
	}
	return newStore(bs, def, path, opt), nil
}

// OpenMemory returns a Store that keeps everything in memory.
func OpenMemory(def *Definition, opt Options) *Store {
	return newStore(newMemStorage(), def, ":memory:", opt)
}

func newStore(s storage, def *Definition, path string, opt Options) *Store {
	logf := opt.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Store{
		storage: s,
		def:     def,
		path:    path,
		logf:    logf,
		verbose: opt.Verbose,
	}
}

func (st *Store) Definition() *Definition { return st.def }
func (st *Store) Path() string            { return st.path }

// Close closes the backing store. Bolt waits for open transactions to finish.
func (st *Store) Close() error {
	return wrapStorage("close "+st.path, st.storage.Close())
}

func (st *Store) BeginRead() (*Tx, error) {
	return st.begin(false)
}

func (st *Store) BeginWrite() (*Tx, error) {
	return st.begin(true)
}

func (st *Store) begin(writable bool) (*Tx, error) {
	stx, err := st.storage.BeginTx(writable)
	if err != nil {
		return nil, wrapStorage("begin", err)
	}
	tx := &Tx{store: st, stx: stx, writable: writable, began: time.Now()}
	if trackTxns {
		tx.stack = string(debug.Stack())
	}
	st.txStarted(tx)
	return tx, nil
}

func (st *Store) txStarted(tx *Tx) {
	if tx.writable {
		st.WriterCount.Add(1)
		st.WriteCount.Add(1)
	} else {
		st.ReaderCount.Add(1)
		st.ReadCount.Add(1)
	}
	if trackTxns {
		st.openMu.Lock()
		if st.open == nil {
			st.open = make(map[*Tx]struct{})
		}
		st.open[tx] = struct{}{}
		st.openMu.Unlock()
	}
}

func (st *Store) txDone(tx *Tx) {
	if tx.writable {
		st.WriterCount.Add(-1)
	} else {
		st.ReaderCount.Add(-1)
	}
	if trackTxns {
		st.openMu.Lock()
		delete(st.open, tx)
		st.openMu.Unlock()
	}
}

// Read runs f in a read transaction.
func (st *Store) Read(f func(tx *Tx) error) error {
	tx, err := st.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Close()
	return safelyCall(f, tx)
}

// Write runs f in a write transaction and commits if f returns nil.
// Panics in f are returned as errors and roll the transaction back.
func (st *Store) Write(f func(tx *Tx) error) error {
	tx, err := st.BeginWrite()
	if err != nil {
		return err
	}
	defer tx.Close()
	err = safelyCall(f, tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func (p panicked) Unwrap() error {
	err, _ := p.reason.(error)
	return err
}

func safelyCall[T any](fn func(T) error, arg T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(arg)
}

// DescribeOpenTxns lists open transactions, oldest first, with the stacks
// that started the ones open for 100 ms or more.
func (st *Store) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}
	st.openMu.Lock()
	txns := slices.Collect(maps.Keys(st.open))
	st.openMu.Unlock()
	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}
	slices.SortFunc(txns, func(a, b *Tx) int { return a.began.Compare(b.began) })

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		age := time.Since(tx.began)
		kind := "read"
		if tx.writable {
			kind = "write"
		}
		fmt.Fprintf(&buf, "\n---\n%s tx open for %d ms\n", kind, age.Milliseconds())
		if age >= 100*time.Millisecond {
			buf.WriteString(tx.stack)
		}
	}
	return buf.String()
}
