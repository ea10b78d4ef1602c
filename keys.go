package netabase

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
)

// Family identifies one of the derived key families of a Model.
type Family int

const (
	FamilySecondary Family = iota + 1
	FamilyRelational
	FamilySubscription
	familyHash
)

func (f Family) String() string {
	switch f {
	case FamilySecondary:
		return "secondary"
	case FamilyRelational:
		return "relational"
	case FamilySubscription:
		return "subscription"
	case familyHash:
		return "hash"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Key is a secondary key, a relational key or a topic, as listed in AddModel.
type Key interface {
	Family() Family
	Name() string
}

// SecondaryKey is a non-unique index over values of type T computed from a row.
type SecondaryKey struct {
	name      string
	valueType reflect.Type
	valueEnc  *keyEncoding
	model     *Model
	pos       int
}

func AddSecondary[T any](name string) *SecondaryKey {
	if !isValidName(name) {
		panic(fmt.Errorf("invalid secondary key name %q", name))
	}
	vt := reflect.TypeOf((*T)(nil)).Elem()
	return &SecondaryKey{
		name:      name,
		valueType: vt,
		valueEnc:  keyEncodingOf(vt),
	}
}

func (sk *SecondaryKey) Family() Family          { return FamilySecondary }
func (sk *SecondaryKey) Name() string            { return sk.name }
func (sk *SecondaryKey) Model() *Model           { return sk.model }
func (sk *SecondaryKey) ValueType() reflect.Type { return sk.valueType }
func (sk *SecondaryKey) String() string          { return sk.model.name + "." + sk.name }
func (sk *SecondaryKey) encodeValue(v any) []byte {
	return encodeTyped(sk.valueEnc, sk.valueType, sk, v)
}

// RelationalKey indexes records by the primary key of a target Model, which
// may live in another Definition.
type RelationalKey struct {
	name        string
	valueType   reflect.Type
	valueEnc    *keyEncoding
	model       *Model
	pos         int
	targetDef   *Definition
	targetModel string
}

// AddRelational declares a relational key whose values are primary keys of
// targetModel in targetDef. The target is resolved on first use, so
// Definitions may reference each other.
func AddRelational[T any](name string, targetDef *Definition, targetModel string) *RelationalKey {
	if !isValidName(name) {
		panic(fmt.Errorf("invalid relational key name %q", name))
	}
	if targetDef == nil {
		panic(fmt.Errorf("relational key %s: nil target definition", name))
	}
	vt := reflect.TypeOf((*T)(nil)).Elem()
	return &RelationalKey{
		name:        name,
		valueType:   vt,
		valueEnc:    keyEncodingOf(vt),
		targetDef:   targetDef,
		targetModel: targetModel,
	}
}

func (rk *RelationalKey) Family() Family                { return FamilyRelational }
func (rk *RelationalKey) Name() string                  { return rk.name }
func (rk *RelationalKey) Model() *Model                 { return rk.model }
func (rk *RelationalKey) TargetDefinition() *Definition { return rk.targetDef }
func (rk *RelationalKey) String() string                { return rk.model.name + "." + rk.name }
func (rk *RelationalKey) encodeValue(v any) []byte {
	return encodeTyped(rk.valueEnc, rk.valueType, rk, v)
}

// IsCrossDefinition reports whether the target lives in another Definition.
func (rk *RelationalKey) IsCrossDefinition() bool {
	return rk.targetDef != rk.model.def
}

// Target resolves the target Model. Panics if it was never declared.
func (rk *RelationalKey) Target() *Model {
	m := rk.targetDef.ModelNamed(rk.targetModel)
	if m == nil {
		panic(fmt.Errorf("%s: target model %s.%s not defined", rk, rk.targetDef.name, rk.targetModel))
	}
	if m.keyType != rk.valueType {
		panic(fmt.Errorf("%s: value type %v does not match %s key type %v", rk, rk.valueType, m.name, m.keyType))
	}
	return m
}

func (topic *Topic) Family() Family { return FamilySubscription }

func encodeTyped(enc *keyEncoding, typ reflect.Type, key Key, v any) []byte {
	val := reflect.ValueOf(v)
	if !val.IsValid() || val.Type() != typ {
		panic(fmt.Errorf("%s %s: got value of type %T, expected %v", key.Family(), key.Name(), v, typ))
	}
	return enc.encode(nil, val)
}

// keyEntry is one derived key of a record: family, discriminant and encoded value.
type keyEntry struct {
	family Family
	pos    int
	value  []byte
}

func (e keyEntry) compare(o keyEntry) int {
	if e.family != o.family {
		return int(e.family) - int(o.family)
	}
	if e.pos != o.pos {
		return e.pos - o.pos
	}
	return bytes.Compare(e.value, o.value)
}

// KeyBuilder collects the derived keys of one row; Models' indexer funcs fill it.
type KeyBuilder struct {
	model   *Model
	entries []keyEntry
}

// Secondary adds value to secondary key sk. Several values per key are allowed.
func (kb *KeyBuilder) Secondary(sk *SecondaryKey, value any) {
	if sk.model != kb.model {
		panic(fmt.Errorf("%s: secondary key %s belongs to another model", kb.model.name, sk.name))
	}
	kb.entries = append(kb.entries, keyEntry{FamilySecondary, sk.pos, sk.encodeValue(value)})
}

// Relational adds a reference to the target row with primary key fk.
func (kb *KeyBuilder) Relational(rk *RelationalKey, fk any) {
	if rk.model != kb.model {
		panic(fmt.Errorf("%s: relational key %s belongs to another model", kb.model.name, rk.name))
	}
	kb.entries = append(kb.entries, keyEntry{FamilyRelational, rk.pos, rk.encodeValue(fk)})
}

// Subscribe adds the row to topic.
func (kb *KeyBuilder) Subscribe(topic *Topic) {
	pos := slices.Index(kb.model.topics, topic)
	if pos < 0 {
		panic(fmt.Errorf("%s: not declared as subscribing to topic %s", kb.model.name, topic.name))
	}
	kb.entries = append(kb.entries, keyEntry{FamilySubscription, pos, []byte(topic.name)})
}

// finalize sorts and deduplicates entries, making them a set.
func (kb *KeyBuilder) finalize() []keyEntry {
	slices.SortFunc(kb.entries, keyEntry.compare)
	return slices.CompactFunc(kb.entries, func(a, b keyEntry) bool {
		return a.compare(b) == 0
	})
}

// diffEntries returns entries only in old and entries only in new. Both
// inputs must be finalized.
func diffEntries(old, new []keyEntry) (removed, added, kept []keyEntry) {
	i, j := 0, 0
	for i < len(old) && j < len(new) {
		c := old[i].compare(new[j])
		switch {
		case c < 0:
			removed = append(removed, old[i])
			i++
		case c > 0:
			added = append(added, new[j])
			j++
		default:
			kept = append(kept, new[j])
			i++
			j++
		}
	}
	removed = append(removed, old[i:]...)
	added = append(added, new[j:]...)
	return
}
