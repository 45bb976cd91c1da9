package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource returns a canned field list per entity type.
type fakeSource struct {
	fields map[string][]FieldDescriptor
	err    error
	calls  int
}

func (f *fakeSource) FetchSchema(ctx context.Context, entityType string) ([]FieldDescriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	fields, ok := f.fields[entityType]
	if !ok {
		return nil, errors.New("unknown entity type")
	}
	return fields, nil
}

func taskFields() []FieldDescriptor {
	return []FieldDescriptor{
		{Key: "start", Label: "Start", DataType: TypeDate, Editable: true},
		{Key: "end", Label: "End", DataType: TypeDate, Editable: true},
		{
			Key:      "status",
			Label:    "Status",
			DataType: TypeEnumReference,
			Editable: true,
			Lookup:   &Lookup{SourceKind: SourceEnumTable, SourceKey: "status"},
		},
		{
			Key:       "duration",
			Label:     "Duration",
			DataType:  TypeNumber,
			Composite: &Composite{ComposedFrom: []string{"start", "end"}, Kind: "date-span"},
		},
	}
}

func newTestLoader(t *testing.T, fields map[string][]FieldDescriptor) *Loader {
	t.Helper()
	src := &fakeSource{fields: fields}
	return NewLoader(src, []string{"table", "detail-view", "form"}, zap.NewNop())
}

func TestLoader_Load(t *testing.T) {
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": taskFields()})

	s, err := l.Load(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "task", s.EntityType())
	assert.Equal(t, 4, s.Len())
}

func TestLoader_LoadCaches(t *testing.T) {
	src := &fakeSource{fields: map[string][]FieldDescriptor{"task": taskFields()}}
	l := NewLoader(src, []string{"table"}, zap.NewNop())

	first, err := l.Load(context.Background(), "task")
	require.NoError(t, err)
	second, err := l.Load(context.Background(), "task")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls)
}

func TestLoader_RefreshReplacesWholesale(t *testing.T) {
	src := &fakeSource{fields: map[string][]FieldDescriptor{"task": taskFields()}}
	l := NewLoader(src, []string{"table"}, zap.NewNop())

	first, err := l.Load(context.Background(), "task")
	require.NoError(t, err)

	src.fields["task"] = taskFields()[:2]
	second, err := l.Refresh(context.Background(), "task")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 4, first.Len(), "previous schema must not be mutated")
	assert.Equal(t, 2, second.Len())
}

func TestLoader_FetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("backend down")}
	l := NewLoader(src, nil, zap.NewNop())

	_, err := l.Load(context.Background(), "task")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "task", fetchErr.EntityType)
}

func TestLoader_DuplicateFieldKey(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "name", DataType: TypeString},
		{Key: "name", DataType: TypeString},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})

	_, err := l.Load(context.Background(), "task")
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, CodeDuplicateField, schemaErr.Code)
}

func TestLoader_CompositeMissingSource(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "start", DataType: TypeDate},
		{
			Key:       "duration",
			DataType:  TypeNumber,
			Composite: &Composite{ComposedFrom: []string{"start", "end"}},
		},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})

	_, err := l.Load(context.Background(), "task")
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, CodeCompositeSource, schemaErr.Code)
	assert.Equal(t, "duration", schemaErr.Field)
}

func TestLoader_CompositeNestedSource(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "start", DataType: TypeDate},
		{Key: "end", DataType: TypeDate},
		{
			Key:       "duration",
			DataType:  TypeNumber,
			Composite: &Composite{ComposedFrom: []string{"start", "end"}},
		},
		{
			Key:       "summary",
			DataType:  TypeString,
			Composite: &Composite{ComposedFrom: []string{"duration"}},
		},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})

	_, err := l.Load(context.Background(), "task")
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, CodeCompositeSource, schemaErr.Code)
	assert.Equal(t, "summary", schemaErr.Field)
}

func TestLoader_CompositeEditableRejected(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "start", DataType: TypeDate},
		{
			Key:       "duration",
			DataType:  TypeNumber,
			Editable:  true,
			Composite: &Composite{ComposedFrom: []string{"start"}},
		},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})

	_, err := l.Load(context.Background(), "task")
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, CodeCompositeEditable, schemaErr.Code)
}

func TestLoader_UnknownDataType(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "blob", DataType: DataType("geometry")},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})

	_, err := l.Load(context.Background(), "task")
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, CodeUnknownDataType, schemaErr.Code)
}

func TestLoader_VisibilityDefaultsToVisible(t *testing.T) {
	fields := []FieldDescriptor{
		{
			Key:        "name",
			DataType:   TypeString,
			Visibility: map[string]bool{"table": false},
		},
	}
	l := newTestLoader(t, map[string][]FieldDescriptor{"task": fields})

	s, err := l.Load(context.Background(), "task")
	require.NoError(t, err)

	f, ok := s.Field("name")
	require.True(t, ok)
	assert.False(t, f.Visibility["table"], "explicit entry preserved")
	assert.True(t, f.Visibility["detail-view"], "unset context defaults to visible")
	assert.True(t, f.Visibility["form"], "unset context defaults to visible")
}
