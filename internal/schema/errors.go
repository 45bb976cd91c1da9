package schema

import "fmt"

// ErrorCode classifies schema validation failures.
type ErrorCode string

const (
	// CodeCompositeSource: a composite field references a missing or
	// composite source field. Nesting composites is rejected to prevent
	// cycles.
	CodeCompositeSource ErrorCode = "cyclic-or-missing-composite-source"

	// CodeDuplicateField: two descriptors share a field key.
	CodeDuplicateField ErrorCode = "duplicate-field-key"

	// CodeCompositeEditable: a composite field is marked editable. Composite
	// fields are derived and view-only.
	CodeCompositeEditable ErrorCode = "composite-field-editable"

	// CodeUnknownDataType: a descriptor carries a data type outside the
	// known set.
	CodeUnknownDataType ErrorCode = "unknown-data-type"
)

// SchemaError reports invalid metadata for an entity type. It is fatal to
// displaying that entity type and is surfaced, never recovered.
type SchemaError struct {
	EntityType string
	Field      string
	Code       ErrorCode
	Detail     string
}

func (e *SchemaError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("schema %s: field %q: %s: %s", e.EntityType, e.Field, e.Code, e.Detail)
	}
	return fmt.Sprintf("schema %s: field %q: %s", e.EntityType, e.Field, e.Code)
}

// FetchError reports a failure retrieving metadata from the schema source.
type FetchError struct {
	EntityType string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("schema fetch failed for %s: %v", e.EntityType, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
