package netabase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrStoreNotLoaded     = errors.New("store not loaded")
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrEncoding           = errors.New("encoding error")
	ErrStorage            = errors.New("storage engine error")
	ErrConversion         = errors.New("conversion error")
	ErrKeyExists          = errors.New("key already exists")
	ErrNotFound           = errors.New("not found")

	errTxClosed  = errors.New("transaction closed")
	errTruncated = errors.New("truncated")
	errBadVarint = errors.New("bad varint")
)

// DataError reports bytes that could not be decoded, and the offset where
// decoding stopped. Is(ErrEncoding) holds.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{Data: data, Off: off, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error        { return e.Err }
func (e *DataError) Is(target error) bool { return target == ErrEncoding }

// Long payloads are shown as head...tail.
const dataErrorHead, dataErrorTail = 64, 32

func (e *DataError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	n := len(e.Data)
	if n > dataErrorHead+dataErrorTail {
		return fmt.Sprintf("%s: (%d) %x...%x", msg, n, e.Data[:dataErrorHead], e.Data[n-dataErrorTail:])
	}
	return fmt.Sprintf("%s: (%d) %x", msg, n, e.Data)
}

// TableError adds table and key context to an engine, codec or constraint error.
type TableError struct {
	Table string
	Key   string
	Msg   string
	Err   error
}

func tableErrf(table string, key string, err error, format string, args ...any) error {
	return &TableError{Table: table, Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *TableError) Unwrap() error { return e.Err }

func (e *TableError) Error() string {
	where := e.Table
	if e.Key != "" {
		where += "/" + e.Key
	}
	parts := []string{where}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// storageErr wraps an engine failure so that errors.Is(err, ErrStorage) holds
// while the original error stays reachable.
type storageErr struct {
	op  string
	err error
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageErr{op, err}
}

func (e *storageErr) Error() string        { return e.op + ": " + e.err.Error() }
func (e *storageErr) Unwrap() error        { return e.err }
func (e *storageErr) Is(target error) bool { return target == ErrStorage }

// PermissionError explains a denied table open, write or definition access.
type PermissionError struct {
	Definition string
	Table      string
	Write      bool
	Reason     string
}

func (e *PermissionError) Error() string {
	mode := "read"
	if e.Write {
		mode = "write"
	}
	what := e.Definition
	if e.Table != "" {
		what += "." + e.Table
	}
	msg := fmt.Sprintf("%v: %s %s", ErrPermissionDenied, mode, what)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}
