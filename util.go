package netabase

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// ruler renders a dump section heading padded with '=' to width.
func ruler(title string, width int) string {
	line := "== " + title + " "
	if n := width - len(line); n > 0 {
		line += strings.Repeat("=", n)
	}
	return line
}

// prefixEnd returns the smallest key that sorts after every key starting
// with prefix, or nil when no such key exists (empty or all-0xFF prefix).
func prefixEnd(prefix []byte) []byte {
	end := slices.Clone(bytes.TrimRight(prefix, "\xff"))
	if len(end) == 0 {
		return nil
	}
	end[len(end)-1]++
	return end
}

func hexKey(b []byte) string {
	switch {
	case b == nil:
		return "<nil>"
	case len(b) == 0:
		return "<empty>"
	default:
		return hex.EncodeToString(b)
	}
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexKey(b))
}
