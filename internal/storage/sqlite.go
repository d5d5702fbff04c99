package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/docstore-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when no document matches a single-row query
	ErrNotFound = errors.New("not found")
	// ErrNotConnected is returned when a collection is used before Connect
	ErrNotConnected = errors.New("collection not connected")
	// ErrEmptyFilter is returned by DeleteMatching for a filter without constraints
	ErrEmptyFilter = errors.New("delete requires at least one attribute constraint")
	// ErrFilterTooLarge is returned for filters with more than MaxFilterPairs values
	ErrFilterTooLarge = errors.New("attribute filter too large")
)

// maxBatchRows bounds the rows of one multi-row statement so that the
// number of bound parameters stays well under SQLite's limit.
const maxBatchRows = 300

// Options configures the SQLite connection pool
type Options struct {
	MaxOpenConns int           // Default 1: SQLite benefits from a single writer
	BusyTimeout  time.Duration // How long a locked database is retried
}

// SQLiteStorage implements Backend using SQLite
type SQLiteStorage struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string]*tableSet // connected collections
}

// connectionPragmas are applied by the driver to every pooled connection
type connectionPragmas struct {
	BusyTimeoutMS int64
	WAL           bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, opts Options) (*sql.DB, error) {
	inMemory := dbPath == ":memory:"
	db, err := sql.Open(DriverName, connectionDSN(dbPath, connectionPragmas{
		BusyTimeoutMS: opts.BusyTimeout.Milliseconds(),
		WAL:           !inMemory,
	}))
	if err != nil {
		return nil, err
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 || inMemory {
		// Every connection to :memory: is a separate database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance with default options
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithOptions(dbPath, Options{})
}

// NewSQLiteStorageWithOptions creates a new SQLite storage instance
func NewSQLiteStorageWithOptions(dbPath string, opts Options) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, tables: make(map[string]*tableSet)}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing only when fn succeeds
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// tableSet returns the cached statements of a connected collection
func (s *SQLiteStorage) tableSet(collection string) (*tableSet, error) {
	s.mu.RLock()
	ts, ok := s.tables[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, collection)
	}
	return ts, nil
}

// Schema operations

// Connect creates the collection tables if absent and caches their statements
func (s *SQLiteStorage) Connect(ctx context.Context, collection string) error {
	ts, err := newTableSet(collection)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(q querier) error {
		for _, stmt := range ts.createStatements(collection) {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create schema for %s: %w", collection, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tables[collection] = ts
	s.mu.Unlock()
	return nil
}

// Truncate removes every document and attribute of the collection
func (s *SQLiteStorage) Truncate(ctx context.Context, collection string) error {
	ts, err := s.tableSet(collection)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+ts.attributes); err != nil {
			return fmt.Errorf("failed to truncate attributes: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM "+ts.documents); err != nil {
			return fmt.Errorf("failed to truncate documents: %w", err)
		}
		return nil
	})
}

// Destroy drops both collection tables and forgets the cached statements
func (s *SQLiteStorage) Destroy(ctx context.Context, collection string) error {
	ts, err := newTableSet(collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.tables, collection)
	s.mu.Unlock()

	return s.withTx(ctx, func(q querier) error {
		for _, stmt := range ts.dropStatements() {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to drop %s: %w", collection, err)
			}
		}
		return nil
	})
}

// Document operations

// InsertDocument stores doc and its attributes in one transaction. Generated
// ids and timestamps are written back onto doc and attrs.
func (s *SQLiteStorage) InsertDocument(ctx context.Context, collection string, doc *DocumentRecord, attrs []*AttributeRecord) error {
	if doc.Body == "" {
		return types.ErrEmptyBody
	}
	ts, err := s.tableSet(collection)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var id int64
	err = s.withTx(ctx, func(q querier) error {
		err := q.QueryRowContext(ctx, ts.insertDocument, now, now, doc.Submitter, doc.Body).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		return insertAttributes(ctx, q, ts, id, attrs)
	})
	if err != nil {
		return err
	}

	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	for _, a := range attrs {
		a.DocumentID = id
	}
	return nil
}

// insertAttributes bulk-inserts attribute rows for documentID and assigns their ids
func insertAttributes(ctx context.Context, q querier, ts *tableSet, documentID int64, attrs []*AttributeRecord) error {
	for start := 0; start < len(attrs); start += maxBatchRows {
		end := min(start+maxBatchRows, len(attrs))
		batch := attrs[start:end]

		rowsSQL := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*3)
		for i, a := range batch {
			rowsSQL[i] = ts.insertAttrRow
			args = append(args, documentID, a.Kind, a.Value)
		}
		stmt := ts.insertAttrHead + strings.Join(rowsSQL, ", ") + " RETURNING id, kind, value"

		rows, err := q.QueryContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("failed to insert attributes: %w", err)
		}
		if err := assignAttributeIDs(rows, batch); err != nil {
			return fmt.Errorf("failed to insert attributes: %w", err)
		}
	}
	return nil
}

// assignAttributeIDs matches RETURNING rows back onto the caller's records.
// RETURNING order is unspecified, so rows are matched by (kind, value).
func assignAttributeIDs(rows *sql.Rows, batch []*AttributeRecord) error {
	defer func() { _ = rows.Close() }()

	pending := make(map[types.AttributePair][]*AttributeRecord, len(batch))
	for _, a := range batch {
		key := types.AttributePair{Kind: a.Kind, Value: a.Value}
		pending[key] = append(pending[key], a)
	}

	for rows.Next() {
		var id int64
		var key types.AttributePair
		if err := rows.Scan(&id, &key.Kind, &key.Value); err != nil {
			return err
		}
		if queue := pending[key]; len(queue) > 0 {
			queue[0].ID = id
			pending[key] = queue[1:]
		}
	}
	return rows.Err()
}

// QueryOne returns a single matching document, or ErrNotFound
func (s *SQLiteStorage) QueryOne(ctx context.Context, collection string, q Query, order Order) (*DocumentRecord, error) {
	ts, err := s.tableSet(collection)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(q.Filter); err != nil {
		return nil, err
	}

	predicate, args := documentPredicate(ts, q)
	stmt := "SELECT " + ts.documentColumns + " FROM " + ts.documents + whereClause(predicate)
	switch order {
	case OrderLatest:
		stmt += " ORDER BY created_at DESC, id DESC"
	default:
		stmt += " ORDER BY RANDOM()"
	}
	stmt += " LIMIT 1"

	doc, err := scanDocument(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s document: %w", order, err)
	}
	return doc, nil
}

// QueryMany returns matching documents in ascending id order, after page.After
func (s *SQLiteStorage) QueryMany(ctx context.Context, collection string, q Query, page Page) ([]*DocumentRecord, error) {
	ts, err := s.tableSet(collection)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(q.Filter); err != nil {
		return nil, err
	}

	predicate, args := documentPredicate(ts, q)
	if page.After > 0 {
		if predicate != "" {
			predicate += " AND "
		}
		predicate += "id > ?"
		args = append(args, page.After)
	}

	stmt := "SELECT " + ts.documentColumns + " FROM " + ts.documents + whereClause(predicate) + " ORDER BY id ASC"
	if page.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, page.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*DocumentRecord, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count returns the number of matching documents. A query with attribute
// constraints only is answered from the attributes table alone.
func (s *SQLiteStorage) Count(ctx context.Context, collection string, q Query) (int, error) {
	ts, err := s.tableSet(collection)
	if err != nil {
		return 0, err
	}
	if err := checkFilter(q.Filter); err != nil {
		return 0, err
	}

	var stmt string
	var args []interface{}
	if q.hasFilter() && len(q.Terms) == 0 {
		sub, subArgs := intersectSubquery(ts, q.Filter)
		stmt = "SELECT COUNT(DISTINCT document_id) FROM (" + sub + ")"
		args = subArgs
	} else {
		predicate, predArgs := documentPredicate(ts, q)
		stmt = "SELECT COUNT(*) FROM " + ts.documents + whereClause(predicate)
		args = predArgs
	}

	var count int
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// DeleteMatching deletes the documents carrying every attribute of filter.
// Their attributes are removed by the cascading foreign key.
func (s *SQLiteStorage) DeleteMatching(ctx context.Context, collection string, filter types.AttributeFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	if err := checkFilter(filter); err != nil {
		return 0, err
	}
	ts, err := s.tableSet(collection)
	if err != nil {
		return 0, err
	}

	sub, args := intersectSubquery(ts, filter)
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+ts.documents+" WHERE id IN ("+sub+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return result.RowsAffected()
}

// Attribute operations

// LoadAttributes fetches the attributes of a batch of documents, ordered by
// document then attribute id.
func (s *SQLiteStorage) LoadAttributes(ctx context.Context, collection string, documentIDs []int64) ([]*AttributeRecord, error) {
	if len(documentIDs) == 0 {
		return []*AttributeRecord{}, nil
	}
	ts, err := s.tableSet(collection)
	if err != nil {
		return nil, err
	}

	attrs := make([]*AttributeRecord, 0, len(documentIDs))
	for start := 0; start < len(documentIDs); start += maxBatchRows {
		end := min(start+maxBatchRows, len(documentIDs))
		batch := documentIDs[start:end]

		args := make([]interface{}, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		stmt := "SELECT id, document_id, kind, value FROM " + ts.attributes +
			" WHERE document_id IN (" + placeholders(len(batch)) + ") ORDER BY document_id, id"

		loaded, err := queryAttributes(ctx, s.db, stmt, args)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, loaded...)
	}
	return attrs, nil
}

func queryAttributes(ctx context.Context, q querier, stmt string, args []interface{}) ([]*AttributeRecord, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attrs []*AttributeRecord
	for rows.Next() {
		var a AttributeRecord
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Kind, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, &a)
	}
	return attrs, rows.Err()
}

// AttributeStats counts, for each (kind, value) of the requested kinds, the
// documents carrying it. Groups with a zero count are never returned.
func (s *SQLiteStorage) AttributeStats(ctx context.Context, collection string, kinds []string) ([]AttributeCount, error) {
	ts, err := s.tableSet(collection)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return []AttributeCount{}, nil
	}

	args := make([]interface{}, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}
	stmt := "SELECT kind, value, COUNT(DISTINCT document_id) AS n FROM " + ts.attributes +
		" WHERE kind IN (" + placeholders(len(kinds)) + ")" +
		" GROUP BY kind, value HAVING COUNT(DISTINCT document_id) > 0" +
		" ORDER BY value, kind"

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make([]AttributeCount, 0)
	for rows.Next() {
		var c AttributeCount
		if err := rows.Scan(&c.Kind, &c.Value, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Catalog operations

// RegisterCollection records a collection. A non-empty not-found message
// replaces the stored one; an empty message keeps it.
func (s *SQLiteStorage) RegisterCollection(ctx context.Context, info *CollectionInfo) error {
	if err := ValidateCollectionName(info.Name); err != nil {
		return err
	}
	query := `
		INSERT INTO collections (name, not_found_message, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET not_found_message =
			CASE WHEN excluded.not_found_message = '' THEN collections.not_found_message
			ELSE excluded.not_found_message END
	`
	if _, err := s.db.ExecContext(ctx, query, info.Name, info.NotFoundMessage, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to register collection: %w", err)
	}
	err := s.db.QueryRowContext(ctx,
		"SELECT not_found_message, created_at FROM collections WHERE name = ?", info.Name,
	).Scan(&info.NotFoundMessage, &info.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read collection: %w", err)
	}
	return nil
}

// ListCollections returns every catalogued collection ordered by name
func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, not_found_message, created_at
		FROM collections
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	infos := make([]*CollectionInfo, 0)
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.NotFoundMessage, &info.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

// ForgetCollection removes a collection from the catalog
func (s *SQLiteStorage) ForgetCollection(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to forget collection: %w", err)
	}
	return nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	var submitter sql.NullString
	if err := row.Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt, &submitter, &doc.Body); err != nil {
		return nil, err
	}
	doc.Submitter = submitter.String
	return &doc, nil
}
