package docset

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dshills/docstore-mcp/internal/storage"
	"github.com/dshills/docstore-mcp/pkg/types"
)

// Document is one stored entry of a DocumentSet, or the set's null document
// when nothing matched. Check Found before relying on ID or timestamps.
type Document struct {
	ID        int64
	Created   time.Time
	Updated   time.Time
	Submitter string

	body  string
	found bool
	set   *DocumentSet

	mu     sync.Mutex
	attrs  []types.Attribute
	loaded bool
}

func newDocument(set *DocumentSet, rec *storage.DocumentRecord) *Document {
	return &Document{
		ID:        rec.ID,
		Created:   rec.CreatedAt,
		Updated:   rec.UpdatedAt,
		Submitter: rec.Submitter,
		body:      rec.Body,
		found:     true,
		set:       set,
	}
}

func newNullDocument(set *DocumentSet, message string) *Document {
	return &Document{body: message, set: set, loaded: true}
}

// Body returns the document text, or the not-found message for a null document
func (d *Document) Body() string {
	return d.body
}

// Found reports whether this is a real document
func (d *Document) Found() bool {
	return d.found
}

// Loaded reports whether attributes are available without a round trip
func (d *Document) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// Attributes returns a copy of the loaded attributes.
// It is empty until LoadAttributes has run for documents returned by AllMatching.
func (d *Document) Attributes() []types.Attribute {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.attrs)
}

// AttributeValues returns the loaded values of one kind in insertion order
func (d *Document) AttributeValues(kind string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var values []string
	for _, a := range d.attrs {
		if a.Kind == kind {
			values = append(values, a.Value)
		}
	}
	return values
}

// LoadAttributes fetches the document's attributes once. Later calls are no-ops.
func (d *Document) LoadAttributes(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}

	records, err := d.set.store.LoadAttributes(ctx, d.set.name, []int64{d.ID})
	if err != nil {
		return fmt.Errorf("failed to load attributes for document %d: %w", d.ID, err)
	}
	d.setAttributesLocked(records)
	return nil
}

// setAttributes installs attributes fetched elsewhere, unless already loaded
func (d *Document) setAttributes(records []*storage.AttributeRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return
	}
	d.setAttributesLocked(records)
}

func (d *Document) setAttributesLocked(records []*storage.AttributeRecord) {
	d.attrs = make([]types.Attribute, 0, len(records))
	for _, r := range records {
		d.attrs = append(d.attrs, r.ToTypesAttribute())
	}
	d.loaded = true
}

// Page is one AllMatching result
type Page struct {
	Documents       []*Document
	HasNextPage     bool
	HasPreviousPage bool
	EndCursor       int64 // ID of the last document, 0 when the page is empty
}

// PageRequest bounds an AllMatching call
type PageRequest struct {
	Size  int   // Maximum documents; 0 returns every match
	After int64 // Cursor: only documents with a greater ID
}
