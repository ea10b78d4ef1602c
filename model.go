package netabase

import (
	"fmt"
	"reflect"
	"slices"

	"lukechampine.com/blake3"
)

// Model is one record type of a Definition.
type Model struct {
	def             *Definition
	name            string
	latestSchemaVer uint64
	pos             int
	rowType         reflect.Type
	rowTypePtr      reflect.Type
	keyField        reflect.StructField
	keyType         reflect.Type
	keyEnc          *keyEncoding
	secondaries     []*SecondaryKey
	relations       []*RelationalKey
	topics          []*Topic
	indexer         func(row any, kb *KeyBuilder)
	migrator        func(tx *Tx, row any, oldVer uint64) error
	suppressContent bool
}

type modelOpt int

const (
	SuppressContentWhenLogging = modelOpt(1)
)

// AddModel declares a Model stored as *Row. The first field of Row is the
// primary key; tag it `msgpack:"-"` to avoid storing it twice. indexer
// derives the secondary, relational and subscription keys of a row; every
// key it uses must be listed in keys. migrator, if non-nil, upgrades rows
// stored under an older schemaVer when they are read.
func AddModel[Row any](def *Definition, name string, schemaVer uint64, indexer func(row *Row, kb *KeyBuilder), migrator func(tx *Tx, row *Row, oldVer uint64) error, keys []Key, opts ...any) *Model {
	if !isValidName(name) {
		panic(fmt.Errorf("%s: invalid model name %q", def.name, name))
	}
	rowPtrType := reflect.TypeOf((*Row)(nil))
	rowType := rowPtrType.Elem()
	if rowType.Kind() != reflect.Struct {
		panic(fmt.Errorf("%s: row type %v of %s must be a struct", def.name, rowType, name))
	}
	if rowType.NumField() == 0 {
		panic(fmt.Errorf("%s: %v is an empty struct", def.name, rowType))
	}
	keyField := rowType.Field(0)
	if !keyField.IsExported() {
		panic(fmt.Errorf("%s: key field %v.%s must be exported", def.name, rowType, keyField.Name))
	}

	m := &Model{
		def:             def,
		name:            name,
		latestSchemaVer: schemaVer,
		rowType:         rowType,
		rowTypePtr:      rowPtrType,
		keyField:        keyField,
		keyType:         keyField.Type,
		keyEnc:          keyEncodingOf(keyField.Type),
	}
	if indexer != nil {
		m.indexer = func(row any, kb *KeyBuilder) {
			indexer(row.(*Row), kb)
		}
	}
	if migrator != nil {
		m.migrator = func(tx *Tx, row any, oldVer uint64) error {
			return migrator(tx, row.(*Row), oldVer)
		}
	}

	for _, key := range keys {
		switch key := key.(type) {
		case *SecondaryKey:
			if key.model != nil {
				panic(fmt.Errorf("%s: secondary key %s already belongs to %s", name, key.name, key.model.name))
			}
			key.model, key.pos = m, len(m.secondaries)
			m.secondaries = append(m.secondaries, key)
		case *RelationalKey:
			if key.model != nil {
				panic(fmt.Errorf("%s: relational key %s already belongs to %s", name, key.name, key.model.name))
			}
			if def.canReference != nil && key.targetDef != def && !slices.Contains(def.canReference, key.targetDef.name) {
				panic(fmt.Errorf("%s: relational key %s targets %s, which %s cannot reference", name, key.name, key.targetDef.name, def.name))
			}
			key.model, key.pos = m, len(m.relations)
			m.relations = append(m.relations, key)
		case *Topic:
			if key.def != def {
				panic(fmt.Errorf("%s: topic %s belongs to another definition", name, key))
			}
			m.topics = append(m.topics, key)
		default:
			panic(fmt.Errorf("%s: invalid key %T", name, key))
		}
	}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case modelOpt:
			if opt == SuppressContentWhenLogging {
				m.suppressContent = true
			}
		default:
			panic(fmt.Errorf("invalid option %T %v", opt, opt))
		}
	}

	def.addModel(m)
	return m
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) String() string               { return m.def.name + "." + m.name }
func (m *Model) Definition() *Definition      { return m.def }
func (m *Model) KeyType() reflect.Type        { return m.keyType }
func (m *Model) RowType() reflect.Type        { return m.rowType }
func (m *Model) SchemaVersion() uint64        { return m.latestSchemaVer }
func (m *Model) Secondaries() []*SecondaryKey { return slices.Clone(m.secondaries) }
func (m *Model) Relations() []*RelationalKey  { return slices.Clone(m.relations) }
func (m *Model) Topics() []*Topic             { return slices.Clone(m.topics) }
func (m *Model) SecondaryNamed(name string) *SecondaryKey {
	for _, sk := range m.secondaries {
		if sk.name == name {
			return sk
		}
	}
	return nil
}
func (m *Model) RelationNamed(name string) *RelationalKey {
	for _, rk := range m.relations {
		if rk.name == name {
			return rk
		}
	}
	return nil
}

// MainTreeName is the table holding the records: {Model}.
func (m *Model) MainTreeName() string { return m.name }

// SecondaryTreeName is {Model}_{Secondary}.
func (m *Model) SecondaryTreeName(sk *SecondaryKey) string { return m.name + "_" + sk.name }

// RelationalTreeName is {Model}_rel_{Relational}.
func (m *Model) RelationalTreeName(rk *RelationalKey) string { return m.name + "_rel_" + rk.name }

// SubscriptionTreeName is {Model}_sub_{Topic}.
func (m *Model) SubscriptionTreeName(topic *Topic) string { return m.name + "_sub_" + topic.name }

// HashTreeName is {Model}_hash.
func (m *Model) HashTreeName() string { return m.name + "_hash" }

func (m *Model) SecondaryTreeNames() []string {
	names := make([]string, 0, len(m.secondaries))
	for _, sk := range m.secondaries {
		names = append(names, m.SecondaryTreeName(sk))
	}
	return names
}

func (m *Model) RelationalTreeNames() []string {
	names := make([]string, 0, len(m.relations))
	for _, rk := range m.relations {
		names = append(names, m.RelationalTreeName(rk))
	}
	return names
}

func (m *Model) SubscriptionTreeNames() []string {
	names := make([]string, 0, len(m.topics))
	for _, topic := range m.topics {
		names = append(names, m.SubscriptionTreeName(topic))
	}
	return names
}

// TreeNames lists every table of the model: main, secondary, relational,
// subscription, hash.
func (m *Model) TreeNames() []string {
	names := []string{m.MainTreeName()}
	names = append(names, m.SecondaryTreeNames()...)
	names = append(names, m.RelationalTreeNames()...)
	names = append(names, m.SubscriptionTreeNames()...)
	return append(names, m.HashTreeName())
}

func (m *Model) treeName(family Family, pos int) string {
	switch family {
	case FamilySecondary:
		return m.SecondaryTreeName(m.secondaries[pos])
	case FamilyRelational:
		return m.RelationalTreeName(m.relations[pos])
	case FamilySubscription:
		return m.SubscriptionTreeName(m.topics[pos])
	case familyHash:
		return m.HashTreeName()
	default:
		panic(fmt.Errorf("invalid family %v", family))
	}
}

// EncodeKey returns the stored form of a primary key, usable in RawRange bounds.
func (m *Model) EncodeKey(key any) []byte {
	val := reflect.ValueOf(key)
	if !val.IsValid() || val.Type() != m.keyType {
		panic(fmt.Errorf("%s: key has type %T, expected %v", m, key, m.keyType))
	}
	return m.keyEnc.encode(nil, val)
}

func (m *Model) DecodeKey(raw []byte) (any, error) {
	val, err := m.keyEnc.decode(raw)
	if err != nil {
		return nil, err
	}
	return val.Interface(), nil
}

func (m *Model) keyString(raw []byte) string {
	return m.keyEnc.keyString(raw)
}

func (m *Model) rowKeyVal(rowVal reflect.Value) reflect.Value {
	return rowVal.Elem().FieldByIndex(m.keyField.Index)
}

func (m *Model) checkRow(row any) reflect.Value {
	rowVal := reflect.ValueOf(row)
	if rowVal.Type() != m.rowTypePtr {
		panic(fmt.Errorf("%s: row has type %T, expected %v", m, row, m.rowTypePtr))
	}
	if rowVal.IsNil() {
		panic(fmt.Errorf("%s: nil row", m))
	}
	return rowVal
}

// entries runs the indexer over a row and returns its derived key set.
func (m *Model) entries(rowVal reflect.Value) []keyEntry {
	kb := KeyBuilder{model: m}
	if m.indexer != nil {
		m.indexer(rowVal.Interface(), &kb)
	}
	return kb.finalize()
}

func (m *Model) encodeRow(rowVal reflect.Value) ([]byte, error) {
	return encodeMsgpack(nil, rowVal)
}

func (m *Model) decodeRow(keyRaw, data []byte) (reflect.Value, error) {
	rowVal := reflect.New(m.rowType)
	if err := decodeMsgpack(data, rowVal); err != nil {
		return reflect.Value{}, err
	}
	keyVal, err := m.keyEnc.decode(keyRaw)
	if err != nil {
		return reflect.Value{}, err
	}
	m.rowKeyVal(rowVal).Set(keyVal)
	return rowVal, nil
}

// ContentHash returns blake3 of the encoded row, as stored in {Model}_hash.
func (m *Model) ContentHash(row any) ([32]byte, error) {
	data, err := m.encodeRow(m.checkRow(row))
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(data), nil
}

func (m *Model) rowFields() []string {
	var fields []string
	for i := 0; i < m.rowType.NumField(); i++ {
		f := m.rowType.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("msgpack")
		fields = append(fields, fmt.Sprintf("%s %v %q", f.Name, f.Type, tag))
	}
	return fields
}
