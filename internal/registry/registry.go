// Package registry resolves renderer capabilities for field descriptors.
// Renderer handles are opaque units registered at startup; the engine never
// inspects their internals, it only hands them a value and a change callback.
package registry

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/schema"
)

// Mode separates view-time and edit-time renderer tables.
type Mode string

const (
	ModeView Mode = "view"
	ModeEdit Mode = "edit"
)

// ChangeFunc is invoked by an edit-mode renderer when the user changes the
// field's value.
type ChangeFunc func(value interface{})

// Handle is an opaque renderer unit. Render produces the rendered output for
// a value; edit-mode handles report user changes through onChange.
type Handle interface {
	Render(mode Mode, value interface{}, onChange ChangeFunc) (string, error)
}

// DuplicateCapabilityError reports a capability name registered twice for the
// same mode. Registration never silently overwrites: two unrelated features
// colliding on a name is an integration mistake that must surface at startup.
type DuplicateCapabilityError struct {
	Mode Mode
	Name string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("renderer capability %q is already registered for mode %s", e.Name, e.Mode)
}

// Registry maps (mode, capability name) to renderer handles, with a default
// handle per data type. Construct one per process and pass it by reference;
// there is no ambient global.
type Registry struct {
	handles  map[Mode]map[string]Handle
	defaults map[Mode]map[schema.DataType]Handle
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handles: map[Mode]map[string]Handle{
			ModeView: make(map[string]Handle),
			ModeEdit: make(map[string]Handle),
		},
		defaults: map[Mode]map[schema.DataType]Handle{
			ModeView: make(map[schema.DataType]Handle),
			ModeEdit: make(map[schema.DataType]Handle),
		},
		logger: logger,
	}
}

// Register adds a named capability for a mode. Returns
// DuplicateCapabilityError if the name is taken.
func (r *Registry) Register(mode Mode, name string, handle Handle) error {
	table, ok := r.handles[mode]
	if !ok {
		return fmt.Errorf("unknown renderer mode %q", mode)
	}
	if _, exists := table[name]; exists {
		return &DuplicateCapabilityError{Mode: mode, Name: name}
	}
	table[name] = handle
	return nil
}

// RegisterDefault sets the fallback handle for a data type in a mode. Like
// named capabilities, defaults reject duplicate registration.
func (r *Registry) RegisterDefault(mode Mode, dataType schema.DataType, handle Handle) error {
	table, ok := r.defaults[mode]
	if !ok {
		return fmt.Errorf("unknown renderer mode %q", mode)
	}
	if _, exists := table[dataType]; exists {
		return &DuplicateCapabilityError{Mode: mode, Name: "default:" + string(dataType)}
	}
	table[dataType] = handle
	return nil
}

// CheckDefaults verifies every data type has exactly one default handle per
// mode. Call it once at startup after registration; a missing default is a
// configuration error, not a runtime condition.
func (r *Registry) CheckDefaults() error {
	for _, mode := range []Mode{ModeView, ModeEdit} {
		for _, dt := range schema.DataTypes {
			if _, ok := r.defaults[mode][dt]; !ok {
				return fmt.Errorf("no default %s renderer registered for data type %s", mode, dt)
			}
		}
	}
	return nil
}

// Resolve returns the renderer handle for a descriptor. Resolution order:
// the descriptor's explicit capability, then the data type default, then a
// plain-text placeholder. Resolve never fails: an unknown capability degrades
// to the placeholder with a logged diagnostic instead of crashing the field.
func (r *Registry) Resolve(mode Mode, descriptor *schema.FieldDescriptor) Handle {
	capability := descriptor.ViewCapability
	if mode == ModeEdit {
		capability = descriptor.EditCapability
	}

	if capability != "" {
		if handle, ok := r.handles[mode][capability]; ok {
			return handle
		}
		r.logger.Warn("renderer capability not registered, falling back",
			zap.String("mode", string(mode)),
			zap.String("capability", capability),
			zap.String("field", descriptor.Key))
	}

	if handle, ok := r.defaults[mode][descriptor.DataType]; ok {
		return handle
	}

	r.logger.Error("no renderer resolvable, using plain-text placeholder",
		zap.String("mode", string(mode)),
		zap.String("field", descriptor.Key),
		zap.String("data_type", string(descriptor.DataType)))
	return &MissingRendererPlaceholder{Field: descriptor.Key}
}
