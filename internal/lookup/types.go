// Package lookup implements the multi-tier cache for reference data:
// enumerations and cross-entity name lookups. Reads are synchronous and never
// perform I/O; population and revalidation happen in the background
// (stale-while-revalidate).
package lookup

import (
	"time"

	"github.com/formwork-ui/formwork/internal/schema"
)

// Option is one selectable value in a lookup list.
type Option struct {
	Value      string            `json:"value"`
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Entry is one cached option list. Entries are owned exclusively by the
// cache and must not be mutated by consumers; a refresh replaces the whole
// entry atomically, so a renderer never observes a half-updated list.
type Entry struct {
	SourceKind schema.SourceKind `json:"source_kind"`
	SourceKey  string            `json:"source_key"`
	Options    []Option          `json:"options"`
	FetchedAt  time.Time         `json:"fetched_at"`
	TTL        time.Duration     `json:"ttl"`
}

// IsStale reports whether the entry has outlived its TTL at the given time.
// Staleness never invalidates a synchronous read; stale data is still served
// while a background revalidation runs.
func (e *Entry) IsStale(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}
