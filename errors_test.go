package netabase

import (
	"errors"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) || !errors.Is(err, ErrEncoding) {
			t.Fatalf("errors.Is(err, inner/ErrEncoding) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2)") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestTableError_ErrorAndUnwrap(t *testing.T) {
	err := tableErrf("User", "u1", ErrKeyExists, "")
	if !errors.Is(err, ErrKeyExists) {
		t.Fatalf("errors.Is(err, ErrKeyExists) = false, wanted true")
	}
	deepEqual(t, err.Error(), "User/u1: key already exists")

	err = tableErrf("User_Name", "", wrapStorage("put", errors.New("disk full")), "writing %d entries", 3)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("errors.Is(err, ErrStorage) = false, wanted true")
	}
	deepEqual(t, err.Error(), "User_Name: writing 3 entries: put: disk full")
}

func TestWrapStorage(t *testing.T) {
	if wrapStorage("x", nil) != nil {
		t.Fatalf("wrapStorage(nil) != nil")
	}
	inner := errors.New("boom")
	err := wrapStorage("commit", inner)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, inner) {
		t.Fatalf("wrapStorage error %v does not match ErrStorage and its cause", err)
	}
}

func TestPermissionError(t *testing.T) {
	err := error(&PermissionError{Definition: "Users", Table: "User_Name", Write: true, Reason: "table opened read-only"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("errors.Is(err, ErrPermissionDenied) = false")
	}
	deepEqual(t, err.Error(), "permission denied: write Users.User_Name: table opened read-only")
	deepEqual(t, (&PermissionError{Definition: "Users"}).Error(), "permission denied: read Users")
}
