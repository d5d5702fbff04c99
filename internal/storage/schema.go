package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidCollectionName is returned for names that cannot be used to derive table names
var ErrInvalidCollectionName = errors.New("invalid collection name")

// collectionNamePattern restricts names to lowercase alphanumerics so that
// derived table names never need escaping.
var collectionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9]{0,47}$`)

// ValidateCollectionName checks that name is safe to interpolate as part of an identifier
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (want lowercase letters and digits, starting with a letter)",
			ErrInvalidCollectionName, name)
	}
	return nil
}

// TableNames returns the document and attribute table names of a collection.
// This is the only place identifiers are derived from collection names.
func TableNames(collection string) (documents, attributes string) {
	return collection + "_documents", collection + "_attributes"
}

// tableSet caches the identifiers and fixed statements of one connected collection
type tableSet struct {
	documents  string // quoted identifier
	attributes string // quoted identifier

	documentColumns string
	insertDocument  string
	insertAttrHead  string
	insertAttrRow   string
}

func newTableSet(collection string) (*tableSet, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	docs, attrs := TableNames(collection)
	ts := &tableSet{
		documents:       quoteIdent(docs),
		attributes:      quoteIdent(attrs),
		documentColumns: "id, created_at, updated_at, submitter, body",
		insertAttrRow:   "(?, ?, ?)",
	}
	ts.insertDocument = `INSERT INTO ` + ts.documents + ` (created_at, updated_at, submitter, body)
		VALUES (?, ?, ?, ?) RETURNING id`
	ts.insertAttrHead = `INSERT INTO ` + ts.attributes + ` (document_id, kind, value) VALUES `
	return ts, nil
}

// createStatements returns the idempotent DDL of the collection
func (ts *tableSet) createStatements(collection string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + ts.documents + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			submitter TEXT,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + ts.attributes + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			FOREIGN KEY (document_id) REFERENCES ` + ts.documents + `(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS ` + quoteIdent("idx_"+collection+"_attr_kind_value") +
			` ON ` + ts.attributes + `(kind, value)`,
		`CREATE INDEX IF NOT EXISTS ` + quoteIdent("idx_"+collection+"_attr_document") +
			` ON ` + ts.attributes + `(document_id)`,
		`CREATE INDEX IF NOT EXISTS ` + quoteIdent("idx_"+collection+"_doc_created") +
			` ON ` + ts.documents + `(created_at)`,
	}
}

// dropStatements removes both tables, children first
func (ts *tableSet) dropStatements() []string {
	return []string{
		`DROP TABLE IF EXISTS ` + ts.attributes,
		`DROP TABLE IF EXISTS ` + ts.documents,
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
