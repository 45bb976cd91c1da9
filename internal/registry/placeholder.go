package registry

import "fmt"

// MissingRendererPlaceholder renders a raw value as plain text. It is
// returned when neither an explicit capability nor a data type default can be
// resolved, so the UI degrades to readable text instead of a blank field.
type MissingRendererPlaceholder struct {
	Field string
}

// Render formats the value as plain text. onChange is ignored: a placeholder
// is read-only regardless of mode.
func (p *MissingRendererPlaceholder) Render(mode Mode, value interface{}, onChange ChangeFunc) (string, error) {
	if value == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", value), nil
}
