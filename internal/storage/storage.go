package storage

import (
	"context"
	"time"

	"github.com/dshills/docstore-mcp/pkg/types"
)

// Storage defines the per-collection data operations of the document store.
// Every method except Connect requires a prior successful Connect for the
// same collection.
type Storage interface {
	// Schema operations
	Connect(ctx context.Context, collection string) error
	Truncate(ctx context.Context, collection string) error
	Destroy(ctx context.Context, collection string) error

	// Document operations
	InsertDocument(ctx context.Context, collection string, doc *DocumentRecord, attrs []*AttributeRecord) error
	QueryOne(ctx context.Context, collection string, q Query, order Order) (*DocumentRecord, error)
	QueryMany(ctx context.Context, collection string, q Query, page Page) ([]*DocumentRecord, error)
	Count(ctx context.Context, collection string, q Query) (int, error)
	DeleteMatching(ctx context.Context, collection string, filter types.AttributeFilter) (int64, error)

	// Attribute operations
	LoadAttributes(ctx context.Context, collection string, documentIDs []int64) ([]*AttributeRecord, error)
	AttributeStats(ctx context.Context, collection string, kinds []string) ([]AttributeCount, error)

	// Database operations
	Close() error
}

// Catalog records which collections exist so they can be reopened on startup
type Catalog interface {
	RegisterCollection(ctx context.Context, info *CollectionInfo) error
	ListCollections(ctx context.Context) ([]*CollectionInfo, error)
	ForgetCollection(ctx context.Context, name string) error
}

// Backend is a Storage that also keeps the collection catalog
type Backend interface {
	Storage
	Catalog
}

// DocumentRecord is one row of a <collection>_documents table
type DocumentRecord struct {
	ID        int64
	Submitter string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttributeRecord is one row of a <collection>_attributes table
type AttributeRecord struct {
	ID         int64
	DocumentID int64
	Kind       string
	Value      string
}

// AttributeCount is one group of an attribute usage aggregate
type AttributeCount struct {
	Kind  string
	Value string
	Count int
}

// CollectionInfo is a catalog entry
type CollectionInfo struct {
	Name            string
	NotFoundMessage string
	CreatedAt       time.Time
}

// Query selects documents by attribute intersection and body terms.
// Terms are regex-safe fragments produced by the query package; all must match.
type Query struct {
	Filter types.AttributeFilter
	Terms  []string
}

// hasFilter reports whether the query constrains attributes
func (q Query) hasFilter() bool {
	return !q.Filter.IsEmpty()
}

// Order selects which single document QueryOne returns
type Order int

const (
	OrderRandom Order = iota // Uniformly random match
	OrderLatest              // Most recently created match
)

// String implements fmt.Stringer
func (o Order) String() string {
	switch o {
	case OrderRandom:
		return "random"
	case OrderLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// Page bounds a QueryMany result using keyset pagination
type Page struct {
	Limit int   // Maximum rows; 0 means unlimited
	After int64 // Only rows with id > After; 0 means from the start
}

// ToTypesAttribute converts an AttributeRecord to types.Attribute
func (a *AttributeRecord) ToTypesAttribute() types.Attribute {
	return types.Attribute{Kind: a.Kind, Value: a.Value}
}

// FromTypesAttributes converts attributes to unsaved records
func FromTypesAttributes(attrs []types.Attribute) []*AttributeRecord {
	records := make([]*AttributeRecord, len(attrs))
	for i, a := range attrs {
		records[i] = &AttributeRecord{Kind: a.Kind, Value: a.Value}
	}
	return records
}
