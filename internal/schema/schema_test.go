package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadTaskSchema(t *testing.T) *EntitySchema {
	t.Helper()
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": taskFields()})
	s, err := l.Load(context.Background(), "task")
	require.NoError(t, err)
	return s
}

func TestEntitySchema_EditableFieldsExcludesComposite(t *testing.T) {
	s := loadTaskSchema(t)

	editable := s.EditableFields()
	keys := make([]string, len(editable))
	for i, f := range editable {
		keys[i] = f.Key
	}

	assert.Equal(t, []string{"start", "end", "status"}, keys)
	for _, f := range editable {
		assert.False(t, f.IsComposite(), "composite field %q must not be editable", f.Key)
	}
}

func TestEntitySchema_FieldsVisibleFor(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "a", DataType: TypeString, Visibility: map[string]bool{"table": true}},
		{Key: "b", DataType: TypeString, Visibility: map[string]bool{"table": false}},
		{Key: "c", DataType: TypeString},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})
	s, err := l.Load(context.Background(), "task")
	require.NoError(t, err)

	visible := s.FieldsVisibleFor("table")
	keys := make([]string, len(visible))
	for i, f := range visible {
		keys[i] = f.Key
	}
	// b is explicitly hidden, c defaulted to visible
	assert.Equal(t, []string{"a", "c"}, keys)
}

func TestEntitySchema_Field(t *testing.T) {
	s := loadTaskSchema(t)

	f, ok := s.Field("status")
	require.True(t, ok)
	assert.Equal(t, TypeEnumReference, f.DataType)
	require.NotNil(t, f.Lookup)
	assert.Equal(t, SourceEnumTable, f.Lookup.SourceKind)
	assert.Equal(t, "status", f.Lookup.SourceKey)

	_, ok = s.Field("nonexistent")
	assert.False(t, ok)
}

func TestEntitySchema_FingerprintStableAcrossLoads(t *testing.T) {
	src := &fakeSource{fields: map[string][]FieldDescriptor{"task": taskFields()}}
	l := NewLoader(src, []string{"table"}, zap.NewNop())

	first, err := l.Refresh(context.Background(), "task")
	require.NoError(t, err)
	second, err := l.Refresh(context.Background(), "task")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint(),
		"identical metadata must fingerprint identically regardless of object identity")
}

func TestEntitySchema_FingerprintChangesWithContent(t *testing.T) {
	src := &fakeSource{fields: map[string][]FieldDescriptor{"task": taskFields()}}
	l := NewLoader(src, []string{"table"}, zap.NewNop())

	first, err := l.Refresh(context.Background(), "task")
	require.NoError(t, err)

	changed := taskFields()
	changed[0].Editable = false
	src.fields["task"] = changed

	second, err := l.Refresh(context.Background(), "task")
	require.NoError(t, err)

	assert.NotEqual(t, first.Fingerprint(), second.Fingerprint())
}

func TestEntitySchema_FieldsReturnsCopy(t *testing.T) {
	s := loadTaskSchema(t)

	fields := s.Fields()
	fields[0].Key = "mutated"

	again := s.Fields()
	assert.Equal(t, "start", again[0].Key)
}

func TestEntitySchema_DerivedListsReturnCopies(t *testing.T) {
	s := loadTaskSchema(t)

	editable := s.EditableFields()
	editable[0].Key = "mutated"
	assert.Equal(t, "start", s.EditableFields()[0].Key)

	visible := s.FieldsVisibleFor("table")
	require.NotEmpty(t, visible)
	visible[0].Key = "mutated"
	assert.Equal(t, "start", s.FieldsVisibleFor("table")[0].Key)
}
