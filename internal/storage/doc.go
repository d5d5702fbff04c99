// Package storage provides SQLite-based persistence for document collections.
//
// Each named collection owns two tables whose names are derived from the
// collection name:
//
//   - <name>_documents: id, created_at, updated_at, submitter, body
//   - <name>_attributes: id, document_id (cascading), kind, value
//
// A small catalog (collections, schema_version) is maintained through
// versioned migrations so that collections can be reopened on startup.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.docstore/docstore.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Create tables on first use; safe to repeat
//	if err := db.Connect(ctx, "quote"); err != nil {
//	    return err
//	}
//
//	doc := &storage.DocumentRecord{Submitter: "alice", Body: "to be or not to be"}
//	attrs := storage.FromTypesAttributes([]types.Attribute{
//	    {Kind: types.KindSpeaker, Value: "hamlet"},
//	})
//	err = db.InsertDocument(ctx, "quote", doc, attrs)
//	// doc.ID, doc.CreatedAt and attrs[i].ID are now set
//
// The document row and its attributes are written in one transaction.
//
// # Queries
//
// A Query combines an attribute filter with body terms. Attribute
// constraints become one subquery per (kind, value) pair, combined with
// INTERSECT; every term becomes an iregexp(term, body) condition:
//
//	q := storage.Query{
//	    Filter: types.AttributeFilter{types.KindSpeaker: {"hamlet"}},
//	    Terms:  []string{"not", `to\ be`},
//	}
//	doc, err := db.QueryOne(ctx, "quote", q, storage.OrderRandom)
//	if errors.Is(err, storage.ErrNotFound) {
//	    // nothing matched
//	}
//
//	// Keyset pagination in ascending id order
//	docs, err := db.QueryMany(ctx, "quote", q, storage.Page{Limit: 20, After: lastID})
//
//	n, err := db.Count(ctx, "quote", q)
//
// # Safety
//
// Only table names are interpolated into SQL, and only after
// ValidateCollectionName accepted the collection name. Every kind, value,
// term, submitter and body is a bound parameter.
//
// # Build Tags
//
// Pure Go Build (default, purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo"
//
// Both builds register the iregexp SQL function used for body matching.
package storage
