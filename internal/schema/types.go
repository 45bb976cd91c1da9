// Package schema provides the field metadata model: typed descriptions of how
// each field of an entity type is rendered, edited, and sourced, plus the
// loader that validates server-supplied metadata.
package schema

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DataType identifies the value domain of a field.
type DataType string

const (
	TypeString          DataType = "string"
	TypeNumber          DataType = "number"
	TypeBoolean         DataType = "boolean"
	TypeDate            DataType = "date"
	TypeTimestamp       DataType = "timestamp"
	TypeEnumReference   DataType = "enum-reference"
	TypeSingleReference DataType = "single-reference"
	TypeMultiReference  DataType = "multi-reference"
	TypeStructured      DataType = "structured"
)

// DataTypes lists every valid data type. Renderer registries use this to
// verify default-handle coverage at startup.
var DataTypes = []DataType{
	TypeString,
	TypeNumber,
	TypeBoolean,
	TypeDate,
	TypeTimestamp,
	TypeEnumReference,
	TypeSingleReference,
	TypeMultiReference,
	TypeStructured,
}

// SourceKind identifies which lookup cache partition supplies option data.
type SourceKind string

const (
	// SourceEnumTable supplies options from a server-defined enumeration.
	SourceEnumTable SourceKind = "enum-table"
	// SourceEntityInstance supplies options from cross-entity name lookups.
	SourceEntityInstance SourceKind = "entity-instance"
)

// Lookup describes which cache partition supplies option data for a
// reference-typed field.
type Lookup struct {
	SourceKind SourceKind `json:"source_kind"`
	SourceKey  string     `json:"source_key"`
}

// Composite marks a derived, read-only, view-only field computed from other
// fields of the same entity. Composite fields are never editable.
type Composite struct {
	ComposedFrom []string `json:"composed_from"`
	Kind         string   `json:"kind"`
}

// FieldDescriptor describes one field of one entity type.
type FieldDescriptor struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	DataType DataType `json:"data_type"`

	// ViewCapability and EditCapability name renderer capabilities resolved
	// against the registry. Empty means "use the built-in default renderer
	// for DataType".
	ViewCapability string `json:"view_capability,omitempty"`
	EditCapability string `json:"edit_capability,omitempty"`

	Lookup *Lookup `json:"lookup,omitempty"`

	// Visibility maps consumer-context names (e.g. "table", "detail-view",
	// "form") to whether the field is shown there. The loader fills in any
	// context missing from the server payload as visible.
	Visibility map[string]bool `json:"visibility"`

	Editable bool `json:"editable"`
	Required bool `json:"required"`

	Composite *Composite `json:"composite,omitempty"`
}

// IsComposite reports whether the field is a derived, view-only field.
func (f *FieldDescriptor) IsComposite() bool {
	return f.Composite != nil
}

// EntitySchema is the ordered set of unique-keyed field descriptors for one
// entity type. It is immutable once constructed; a refresh replaces the whole
// schema, never mutates it in place.
type EntitySchema struct {
	entityType  string
	fields      []FieldDescriptor
	byKey       map[string]int
	fingerprint uint64

	// Derived field lists are memoized keyed on the content fingerprint
	// rather than object identity, so recomputation is stable across loads
	// of identical metadata.
	memoMu      sync.Mutex
	visibleMemo map[string][]FieldDescriptor
	editMemo    []FieldDescriptor
}

// newEntitySchema indexes and fingerprints an already-validated field list.
func newEntitySchema(entityType string, fields []FieldDescriptor) *EntitySchema {
	s := &EntitySchema{
		entityType:  entityType,
		fields:      fields,
		byKey:       make(map[string]int, len(fields)),
		visibleMemo: make(map[string][]FieldDescriptor),
	}
	for i := range fields {
		s.byKey[fields[i].Key] = i
	}
	s.fingerprint = fingerprintFields(entityType, fields)
	return s
}

// fingerprintFields computes a stable content hash of the schema. Consumers
// memoizing derived state must key on this, not on schema identity.
func fingerprintFields(entityType string, fields []FieldDescriptor) uint64 {
	h := xxhash.New()
	h.WriteString(entityType)
	for i := range fields {
		f := &fields[i]
		h.WriteString("\x00")
		h.WriteString(f.Key)
		h.WriteString(string(f.DataType))
		h.WriteString(f.ViewCapability)
		h.WriteString(f.EditCapability)
		h.WriteString(strconv.FormatBool(f.Editable))
		h.WriteString(strconv.FormatBool(f.Required))
		if f.Lookup != nil {
			h.WriteString(string(f.Lookup.SourceKind))
			h.WriteString(f.Lookup.SourceKey)
		}
		if f.Composite != nil {
			for _, src := range f.Composite.ComposedFrom {
				h.WriteString(src)
			}
		}
		for _, ctx := range sortedContexts(f.Visibility) {
			h.WriteString(ctx)
			h.WriteString(strconv.FormatBool(f.Visibility[ctx]))
		}
	}
	return h.Sum64()
}

// sortedContexts returns the visibility context names in sorted order so the
// fingerprint is independent of map iteration order.
func sortedContexts(visibility map[string]bool) []string {
	contexts := make([]string, 0, len(visibility))
	for ctx := range visibility {
		contexts = append(contexts, ctx)
	}
	sort.Strings(contexts)
	return contexts
}

// EntityType returns the entity type this schema describes.
func (s *EntitySchema) EntityType() string {
	return s.entityType
}

// Fingerprint returns the stable content hash of this schema.
func (s *EntitySchema) Fingerprint() uint64 {
	return s.fingerprint
}

// Fields returns a copy of all field descriptors in schema order.
func (s *EntitySchema) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the descriptor for key.
func (s *EntitySchema) Field(key string) (FieldDescriptor, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return FieldDescriptor{}, false
	}
	return s.fields[i], true
}

// Len returns the number of fields.
func (s *EntitySchema) Len() int {
	return len(s.fields)
}

// FieldsVisibleFor returns the fields visible in the named consumer context,
// preserving schema order.
func (s *EntitySchema) FieldsVisibleFor(context string) []FieldDescriptor {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	if cached, ok := s.visibleMemo[context]; ok {
		return copyFields(cached)
	}

	var out []FieldDescriptor
	for i := range s.fields {
		if s.fields[i].Visibility[context] {
			out = append(out, s.fields[i])
		}
	}
	s.visibleMemo[context] = out
	return copyFields(out)
}

// EditableFields returns all non-composite fields with Editable set,
// preserving schema order. Composite fields are excluded by invariant.
func (s *EntitySchema) EditableFields() []FieldDescriptor {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	if s.editMemo != nil {
		return copyFields(s.editMemo)
	}

	out := make([]FieldDescriptor, 0, len(s.fields))
	for i := range s.fields {
		f := &s.fields[i]
		if f.Editable && !f.IsComposite() {
			out = append(out, *f)
		}
	}
	s.editMemo = out
	return copyFields(out)
}

// copyFields copies a derived field list so callers cannot poison the memo.
func copyFields(fields []FieldDescriptor) []FieldDescriptor {
	if fields == nil {
		return nil
	}
	out := make([]FieldDescriptor, len(fields))
	copy(out, fields)
	return out
}
