package netabase

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"lukechampine.com/blake3"
)

// Definition is a closed set of Models stored together in one backing store.
// Declare it once as a package-level value and add Models with AddModel.
type Definition struct {
	name         string
	version      uint64
	canReference []string

	models          []*Model
	modelsByName    map[string]*Model
	modelsByRowType map[reflect.Type]*Model
	treeOwners      map[string]*Model
	topics          []*Topic
	topicsByName    map[string]*Topic
}

type DefinitionOpts struct {
	// Version is recorded in metadata; it is not interpreted.
	Version uint64

	// CanReference lists Definitions that relational keys of this one may
	// point into. Nil means any.
	CanReference []string
}

func NewDefinition(name string, opt DefinitionOpts) *Definition {
	if !isValidName(name) {
		panic(fmt.Errorf("invalid definition name %q", name))
	}
	return &Definition{
		name:            name,
		version:         opt.Version,
		canReference:    slices.Clone(opt.CanReference),
		modelsByName:    make(map[string]*Model),
		modelsByRowType: make(map[reflect.Type]*Model),
		treeOwners:      make(map[string]*Model),
		topicsByName:    make(map[string]*Topic),
	}
}

func (def *Definition) Name() string    { return def.name }
func (def *Definition) Version() uint64 { return def.version }
func (def *Definition) String() string  { return def.name }

// Models returns all Models in declaration order.
func (def *Definition) Models() []*Model {
	return slices.Clone(def.models)
}

func (def *Definition) ModelNamed(name string) *Model {
	return def.modelsByName[name]
}

func (def *Definition) Topics() []*Topic {
	return slices.Clone(def.topics)
}

func (def *Definition) TopicNamed(name string) *Topic {
	return def.topicsByName[name]
}

// ModelByRowType returns the Model stored as *Row, or nil.
func (def *Definition) ModelByRowType(rowPtrType reflect.Type) *Model {
	return def.modelsByRowType[rowPtrType]
}

func (def *Definition) modelByRow(row any) *Model {
	rt := reflect.TypeOf(row)
	m := def.modelsByRowType[rt]
	if m == nil {
		panic(fmt.Errorf("%s: no model defined for row type %v", def.name, rt))
	}
	return m
}

// TreeNames lists the table names of every Model, in declaration order.
func (def *Definition) TreeNames() []string {
	var names []string
	for _, m := range def.models {
		names = append(names, m.TreeNames()...)
	}
	return names
}

// References lists the other Definitions targeted by relational keys.
func (def *Definition) References() []string {
	var refs []string
	for _, m := range def.models {
		for _, rk := range m.relations {
			if rk.targetDef != def && !slices.Contains(refs, rk.targetDef.name) {
				refs = append(refs, rk.targetDef.name)
			}
		}
	}
	return refs
}

// CanReference reports the Definitions this one is allowed to reference.
func (def *Definition) CanReference() []string {
	if def.canReference == nil {
		return def.References()
	}
	return slices.Clone(def.canReference)
}

// Describe returns the canonical schema text that Fingerprint hashes.
func (def *Definition) Describe() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "definition %s v%d\n", def.name, def.version)
	for _, topic := range def.topics {
		fmt.Fprintf(&buf, "topic %s\n", topic.name)
	}
	for _, m := range def.models {
		fmt.Fprintf(&buf, "model %s v%d key %v\n", m.name, m.latestSchemaVer, m.keyType)
		for _, f := range m.rowFields() {
			fmt.Fprintf(&buf, "  field %s\n", f)
		}
		for _, sk := range m.secondaries {
			fmt.Fprintf(&buf, "  secondary %s %v\n", sk.name, sk.valueType)
		}
		for _, rk := range m.relations {
			fmt.Fprintf(&buf, "  relational %s %v -> %s.%s\n", rk.name, rk.valueType, rk.targetDef.name, rk.targetModel)
		}
		for _, topic := range m.topics {
			fmt.Fprintf(&buf, "  subscription %s\n", topic.name)
		}
	}
	return buf.String()
}

// Fingerprint is "blake3:<hex>" of Describe. It changes whenever the set
// of models, fields or keys changes.
func (def *Definition) Fingerprint() string {
	sum := blake3.Sum256([]byte(def.Describe()))
	return "blake3:" + hex.EncodeToString(sum[:])
}

func (def *Definition) addModel(m *Model) {
	if def.modelsByName[m.name] != nil {
		panic(fmt.Errorf("%s: model %s defined twice", def.name, m.name))
	}
	if prev := def.modelsByRowType[m.rowTypePtr]; prev != nil {
		panic(fmt.Errorf("%s: models %s and %s share row type %v", def.name, prev.name, m.name, m.rowTypePtr))
	}
	// Tables of all models share one namespace, so User_email may be either
	// a secondary index of User or the main table of a model.
	names := m.TreeNames()
	for i, name := range names {
		if owner := def.treeOwners[name]; owner != nil {
			panic(fmt.Errorf("%s: table %s of model %s collides with model %s", def.name, name, m.name, owner.name))
		}
		if slices.Contains(names[:i], name) {
			panic(fmt.Errorf("%s: table name %s used twice in model %s", def.name, name, m.name))
		}
	}
	for _, name := range names {
		def.treeOwners[name] = m
	}
	m.pos = len(def.models)
	def.models = append(def.models, m)
	def.modelsByName[m.name] = m
	def.modelsByRowType[m.rowTypePtr] = m
}

// Topic is a subscription topic. Models subscribe records to it through
// KeyBuilder.Subscribe; each subscribing Model keeps its own topic table.
type Topic struct {
	def  *Definition
	name string
	pos  int
}

func AddTopic(def *Definition, name string) *Topic {
	if !isValidName(name) {
		panic(fmt.Errorf("%s: invalid topic name %q", def.name, name))
	}
	if def.topicsByName[name] != nil {
		panic(fmt.Errorf("%s: topic %s defined twice", def.name, name))
	}
	topic := &Topic{def: def, name: name, pos: len(def.topics)}
	def.topics = append(def.topics, topic)
	def.topicsByName[name] = topic
	return topic
}

func (topic *Topic) Name() string   { return topic.name }
func (topic *Topic) String() string { return topic.def.name + "." + topic.name }

func isValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
