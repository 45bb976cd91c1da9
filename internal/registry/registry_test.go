package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/schema"
)

// stubHandle is a named test renderer.
type stubHandle struct {
	name string
}

func (s *stubHandle) Render(mode Mode, value interface{}, onChange ChangeFunc) (string, error) {
	return s.name, nil
}

func newFullRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(zap.NewNop())
	for _, mode := range []Mode{ModeView, ModeEdit} {
		for _, dt := range schema.DataTypes {
			err := r.RegisterDefault(mode, dt, &stubHandle{name: "default:" + string(mode) + ":" + string(dt)})
			require.NoError(t, err)
		}
	}
	return r
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.Register(ModeView, "badge", &stubHandle{name: "badge"}))

	err := r.Register(ModeView, "badge", &stubHandle{name: "other"})
	require.Error(t, err)

	var dup *DuplicateCapabilityError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, ModeView, dup.Mode)
	assert.Equal(t, "badge", dup.Name)
}

func TestRegistry_SameNameDifferentModes(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.Register(ModeView, "badge", &stubHandle{name: "view-badge"}))
	require.NoError(t, r.Register(ModeEdit, "badge", &stubHandle{name: "edit-badge"}))
}

func TestRegistry_RegisterDefaultDuplicate(t *testing.T) {
	r := New(zap.NewNop())

	require.NoError(t, r.RegisterDefault(ModeView, schema.TypeString, &stubHandle{name: "a"}))
	err := r.RegisterDefault(ModeView, schema.TypeString, &stubHandle{name: "b"})

	var dup *DuplicateCapabilityError
	require.ErrorAs(t, err, &dup)
}

func TestRegistry_CheckDefaults(t *testing.T) {
	r := New(zap.NewNop())
	assert.Error(t, r.CheckDefaults(), "empty registry must fail the startup check")

	full := newFullRegistry(t)
	assert.NoError(t, full.CheckDefaults())
}

func TestRegistry_ResolveExplicitCapability(t *testing.T) {
	r := newFullRegistry(t)
	badge := &stubHandle{name: "badge"}
	require.NoError(t, r.Register(ModeView, "badge", badge))

	desc := &schema.FieldDescriptor{Key: "status", DataType: schema.TypeEnumReference, ViewCapability: "badge"}
	assert.Same(t, badge, r.Resolve(ModeView, desc))
}

func TestRegistry_ResolveModeSelectsCapability(t *testing.T) {
	r := newFullRegistry(t)
	picker := &stubHandle{name: "picker"}
	require.NoError(t, r.Register(ModeEdit, "picker", picker))

	desc := &schema.FieldDescriptor{
		Key:            "status",
		DataType:       schema.TypeEnumReference,
		ViewCapability: "badge", // unregistered
		EditCapability: "picker",
	}

	assert.Same(t, picker, r.Resolve(ModeEdit, desc))
}

func TestRegistry_ResolveFallsBackToDefault(t *testing.T) {
	r := newFullRegistry(t)

	// No explicit capability set
	desc := &schema.FieldDescriptor{Key: "name", DataType: schema.TypeString}
	got, err := r.Resolve(ModeView, desc).Render(ModeView, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "default:view:string", got)

	// Explicit capability referencing an unregistered renderer
	desc = &schema.FieldDescriptor{Key: "name", DataType: schema.TypeString, ViewCapability: "fancy"}
	got, err = r.Resolve(ModeView, desc).Render(ModeView, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "default:view:string", got)
}

func TestRegistry_ResolveNeverFails(t *testing.T) {
	// Registry with no defaults at all: resolution still returns a handle.
	r := New(zap.NewNop())

	desc := &schema.FieldDescriptor{Key: "name", DataType: schema.TypeString, ViewCapability: "fancy"}
	handle := r.Resolve(ModeView, desc)
	require.NotNil(t, handle)

	placeholder, ok := handle.(*MissingRendererPlaceholder)
	require.True(t, ok)
	assert.Equal(t, "name", placeholder.Field)
}

func TestMissingRendererPlaceholder_RendersPlainText(t *testing.T) {
	p := &MissingRendererPlaceholder{Field: "count"}

	got, err := p.Render(ModeView, 42, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	got, err = p.Render(ModeEdit, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
