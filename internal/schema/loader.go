package schema

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Source supplies raw field descriptors for an entity type, typically from a
// backend metadata endpoint.
type Source interface {
	FetchSchema(ctx context.Context, entityType string) ([]FieldDescriptor, error)
}

// Loader fetches, validates, and caches entity schemas. Schemas are validated
// at load time: a violated invariant fails the load rather than producing a
// partially usable schema. Cached schemas are replaced wholesale on Refresh.
type Loader struct {
	source   Source
	contexts []string
	logger   *zap.Logger

	mu      sync.RWMutex
	schemas map[string]*EntitySchema
}

// NewLoader creates a loader. contexts names every known consumer context
// (e.g. "table", "detail-view", "form"); fields missing a visibility entry
// for one of them default to visible with a recorded warning.
func NewLoader(source Source, contexts []string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:   source,
		contexts: contexts,
		logger:   logger,
		schemas:  make(map[string]*EntitySchema),
	}
}

// Load returns the schema for entityType, fetching and validating it on
// first use.
func (l *Loader) Load(ctx context.Context, entityType string) (*EntitySchema, error) {
	l.mu.RLock()
	cached, ok := l.schemas[entityType]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}
	return l.Refresh(ctx, entityType)
}

// Refresh fetches the schema for entityType from the source and replaces the
// cached schema atomically. The previous schema object is never mutated;
// consumers holding it keep a consistent snapshot.
func (l *Loader) Refresh(ctx context.Context, entityType string) (*EntitySchema, error) {
	fields, err := l.source.FetchSchema(ctx, entityType)
	if err != nil {
		return nil, &FetchError{EntityType: entityType, Err: err}
	}

	validated, err := l.validate(entityType, fields)
	if err != nil {
		return nil, err
	}

	s := newEntitySchema(entityType, validated)

	l.mu.Lock()
	l.schemas[entityType] = s
	l.mu.Unlock()

	l.logger.Debug("schema loaded",
		zap.String("entity_type", entityType),
		zap.Int("fields", s.Len()),
		zap.Uint64("fingerprint", s.Fingerprint()))
	return s, nil
}

// Cached returns the cached schema for entityType without fetching.
func (l *Loader) Cached(entityType string) (*EntitySchema, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.schemas[entityType]
	return s, ok
}

// validate checks schema invariants and normalizes visibility. It returns a
// copy of the descriptors so the caller's slice is never retained.
func (l *Loader) validate(entityType string, fields []FieldDescriptor) ([]FieldDescriptor, error) {
	out := make([]FieldDescriptor, len(fields))
	copy(out, fields)

	known := make(map[string]DataType, len(DataTypes))
	for _, dt := range DataTypes {
		known[string(dt)] = dt
	}

	byKey := make(map[string]*FieldDescriptor, len(out))
	for i := range out {
		f := &out[i]

		if _, dup := byKey[f.Key]; dup {
			return nil, &SchemaError{EntityType: entityType, Field: f.Key, Code: CodeDuplicateField}
		}
		byKey[f.Key] = f

		if _, ok := known[string(f.DataType)]; !ok {
			return nil, &SchemaError{
				EntityType: entityType,
				Field:      f.Key,
				Code:       CodeUnknownDataType,
				Detail:     string(f.DataType),
			}
		}
	}

	for i := range out {
		f := &out[i]
		if !f.IsComposite() {
			continue
		}

		// Composite fields are derived and view-only.
		if f.Editable {
			return nil, &SchemaError{EntityType: entityType, Field: f.Key, Code: CodeCompositeEditable}
		}

		for _, src := range f.Composite.ComposedFrom {
			source, ok := byKey[src]
			if !ok {
				return nil, &SchemaError{
					EntityType: entityType,
					Field:      f.Key,
					Code:       CodeCompositeSource,
					Detail:     "missing source field " + src,
				}
			}
			if source.IsComposite() {
				return nil, &SchemaError{
					EntityType: entityType,
					Field:      f.Key,
					Code:       CodeCompositeSource,
					Detail:     "source field " + src + " is itself composite",
				}
			}
		}
	}

	// Every known consumer context must be present; unset contexts default
	// to visible. A field is never silently dropped from a surface.
	for i := range out {
		f := &out[i]
		normalized := make(map[string]bool, len(l.contexts))
		for ctx, visible := range f.Visibility {
			normalized[ctx] = visible
		}
		for _, ctx := range l.contexts {
			if _, ok := normalized[ctx]; !ok {
				normalized[ctx] = true
				l.logger.Warn("field missing visibility entry, defaulting to visible",
					zap.String("entity_type", entityType),
					zap.String("field", f.Key),
					zap.String("context", ctx))
			}
		}
		f.Visibility = normalized
	}

	return out, nil
}
