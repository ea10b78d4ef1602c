package netabase

import (
	"fmt"
	"slices"
	"strings"
)

// Level is the coarse access level of a Grant.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelReadWrite
	LevelAdmin
)

var levelNames = []string{"none", "read", "write", "read_write", "admin"}

// CanRead reports whether the level permits reads. Admin does.
func (l Level) CanRead() bool {
	return l == LevelRead || l == LevelReadWrite || l == LevelAdmin
}

// CanWrite reports whether the level permits writes. Admin does.
func (l Level) CanWrite() bool {
	return l == LevelWrite || l == LevelReadWrite || l == LevelAdmin
}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) {
	if l < 0 || int(l) >= len(levelNames) {
		return nil, fmt.Errorf("invalid permission level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	i := slices.Index(levelNames, strings.ToLower(string(text)))
	if i < 0 {
		return fmt.Errorf("invalid permission level %q", text)
	}
	*l = Level(i)
	return nil
}

// CrossAccess is what a Grant allows against another Definition, separately
// from the per-model access inside the Definitions it covers.
type CrossAccess struct {
	Read    bool `toml:"read"`
	Write   bool `toml:"write"`
	Hydrate bool `toml:"hydrate"`
}

// AllDefinitions matches every Definition name in Grant.Definitions and
// Grant.Cross.
const AllDefinitions = "*"

// Grant is a runtime permission ticket.
type Grant struct {
	Level       Level
	Definitions []string
	Cross       map[string]CrossAccess
}

// AdminGrant returns a grant covering every Definition for reads, writes and
// link hydration.
func AdminGrant() *Grant {
	return &Grant{
		Level:       LevelAdmin,
		Definitions: []string{AllDefinitions},
		Cross:       map[string]CrossAccess{AllDefinitions: {Read: true, Write: true, Hydrate: true}},
	}
}

// ReadGrant is a read-only grant over the named Definitions.
func ReadGrant(defs ...string) *Grant {
	return &Grant{Level: LevelRead, Definitions: defs}
}

// Covers reports whether def is in the grant's allow-list.
func (g *Grant) Covers(def string) bool {
	return g != nil && (slices.Contains(g.Definitions, def) || slices.Contains(g.Definitions, AllDefinitions))
}

// CrossFor returns the cross-definition access granted for target.
func (g *Grant) CrossFor(target string) CrossAccess {
	if g == nil {
		return CrossAccess{}
	}
	if ca, ok := g.Cross[target]; ok {
		return ca
	}
	return g.Cross[AllDefinitions]
}

func (g *Grant) String() string {
	if g == nil {
		return "<no grant>"
	}
	return fmt.Sprintf("%s[%s]", g.Level, strings.Join(g.Definitions, ","))
}

// CheckPermission decides whether g allows reading (or writing, when write is
// set) def. A Definition outside g.Definitions is still reachable through a
// matching Cross entry. Returns a *PermissionError wrapping ErrPermissionDenied.
func CheckPermission(g *Grant, def *Definition, write bool) error {
	if g == nil {
		return &PermissionError{Definition: def.name, Write: write, Reason: "no grant"}
	}
	if write && !g.Level.CanWrite() {
		return &PermissionError{Definition: def.name, Write: write, Reason: fmt.Sprintf("level %s does not allow writes", g.Level)}
	}
	if !write && !g.Level.CanRead() {
		return &PermissionError{Definition: def.name, Write: write, Reason: fmt.Sprintf("level %s does not allow reads", g.Level)}
	}
	if g.Covers(def.name) {
		return nil
	}
	ca := g.CrossFor(def.name)
	if (write && ca.Write) || (!write && ca.Read) {
		return nil
	}
	return &PermissionError{Definition: def.name, Write: write, Reason: "definition not granted"}
}

// CheckHydrate decides whether g allows following a relational link from a
// row of from into a row of to. Within one Definition this is a plain read.
// Across Definitions the grant needs a read-capable level and Hydrate access
// to the target.
func CheckHydrate(g *Grant, from, to *Definition) error {
	if from == to {
		return CheckPermission(g, to, false)
	}
	if g == nil {
		return &PermissionError{Definition: to.name, Reason: "no grant for cross-definition hydration from " + from.name}
	}
	if !g.Level.CanRead() {
		return &PermissionError{Definition: to.name, Reason: fmt.Sprintf("level %s does not allow reads", g.Level)}
	}
	if !g.CrossFor(to.name).Hydrate {
		return &PermissionError{Definition: to.name, Reason: "hydration from " + from.name + " not granted"}
	}
	return nil
}

// Role is a named Grant, listed in the manager's root metadata.
type Role struct {
	Name  string
	Grant Grant
}
