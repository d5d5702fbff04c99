package docset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/docstore-mcp/internal/metrics"
	"github.com/dshills/docstore-mcp/internal/query"
	"github.com/dshills/docstore-mcp/internal/stats"
	"github.com/dshills/docstore-mcp/internal/storage"
	"github.com/dshills/docstore-mcp/pkg/types"
)

var (
	// ErrNoStorage is returned by New when no backend is supplied
	ErrNoStorage = errors.New("document set requires a storage backend")
	// ErrDestroyed is returned by operations on a destroyed DocumentSet
	ErrDestroyed = errors.New("document set has been destroyed")
)

// DefaultNotFoundMessage is the null document body when Options leaves it empty
const DefaultNotFoundMessage = "No matching document found."

// Options configures a DocumentSet
type Options struct {
	NotFoundMessage  string             // Body of the null document
	OperationTimeout time.Duration      // Per-operation deadline; 0 disables
	StatsKinds       []string           // Kinds used by UserStats when none are given
	Metrics          *metrics.Collector // Optional
	Logger           *zap.Logger        // Optional; defaults to a no-op logger
}

// DocumentSet is a named collection of tagged documents backed by two tables.
// It is safe for concurrent use.
type DocumentSet struct {
	name  string
	store storage.Storage
	opts  Options
	null  atomic.Pointer[Document]

	connected    atomic.Bool
	destroyed    atomic.Bool
	connectGroup singleflight.Group
	schemaMu     sync.Mutex // held while tables are created or dropped

	statsGroup singleflight.Group
	statsMu    sync.Mutex
	statsGen   uint64
	statsMemo  map[string]*stats.Table
}

// New creates a DocumentSet for the named collection. The schema is created
// lazily by the first operation or an explicit WhenConnected.
func New(name string, store storage.Storage, opts Options) (*DocumentSet, error) {
	if store == nil {
		return nil, ErrNoStorage
	}
	if err := storage.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if opts.NotFoundMessage == "" {
		opts.NotFoundMessage = DefaultNotFoundMessage
	}
	if len(opts.StatsKinds) == 0 {
		opts.StatsKinds = []string{types.KindSpeaker, types.KindMention}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &DocumentSet{
		name:      name,
		store:     store,
		opts:      opts,
		statsMemo: make(map[string]*stats.Table),
	}
	s.null.Store(newNullDocument(s, opts.NotFoundMessage))
	return s, nil
}

// Name returns the collection name
func (s *DocumentSet) Name() string {
	return s.name
}

// DocumentTableName returns the name of the documents table
func (s *DocumentSet) DocumentTableName() string {
	documents, _ := storage.TableNames(s.name)
	return documents
}

// AttributeTableName returns the name of the attributes table
func (s *DocumentSet) AttributeTableName() string {
	_, attributes := storage.TableNames(s.name)
	return attributes
}

// NullDocument returns the shared not-found document of this set
func (s *DocumentSet) NullDocument() *Document {
	return s.null.Load()
}

// SetNotFoundMessage replaces the null document body. An empty message is ignored.
func (s *DocumentSet) SetNotFoundMessage(message string) {
	if message == "" {
		return
	}
	s.null.Store(newNullDocument(s, message))
}

// WhenConnected ensures the schema exists. Concurrent callers share one
// attempt; success is remembered, failure is not.
func (s *DocumentSet) WhenConnected(ctx context.Context) error {
	if s.destroyed.Load() {
		return ErrDestroyed
	}
	if s.connected.Load() {
		return nil
	}

	_, err, _ := s.connectGroup.Do("connect", func() (interface{}, error) {
		s.schemaMu.Lock()
		defer s.schemaMu.Unlock()
		if s.destroyed.Load() {
			return nil, ErrDestroyed
		}
		if s.connected.Load() {
			return nil, nil
		}
		return nil, s.connectLocked(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to connect collection %s: %w", s.name, err)
	}
	return nil
}

// connectLocked creates the schema. The caller holds schemaMu.
func (s *DocumentSet) connectLocked(ctx context.Context) error {
	if err := s.store.Connect(ctx, s.name); err != nil {
		return err
	}
	s.connected.Store(true)
	s.opts.Logger.Debug("collection connected", zap.String("collection", s.name))
	return nil
}

// begin applies the operation timeout and waits for the schema
func (s *DocumentSet) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if s.opts.OperationTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opts.OperationTimeout)
	}
	if err := s.WhenConnected(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

func (s *DocumentSet) observe(operation string, started time.Time, err error) {
	s.observeStatus(operation, metrics.StatusOf(err), started, err)
}

func (s *DocumentSet) observeStatus(operation, status string, started time.Time, err error) {
	s.opts.Metrics.Observe(s.name, operation, status, started)
	if err != nil && !query.IsSyntaxError(err) {
		s.opts.Logger.Warn("document set operation failed",
			zap.String("collection", s.name),
			zap.String("operation", operation),
			zap.Error(err))
	}
}

// buildQuery parses the free-text query string into body terms
func buildQuery(filter types.AttributeFilter, raw string) (storage.Query, error) {
	terms, err := query.ParseTerms(raw)
	if err != nil {
		return storage.Query{}, err
	}
	return storage.Query{Filter: filter, Terms: terms}, nil
}

// Add stores a document and its attributes atomically and returns it with
// attributes loaded.
func (s *DocumentSet) Add(ctx context.Context, submitter, body string, attrs []types.Attribute) (doc *Document, err error) {
	started := time.Now()
	defer func() { s.observe("add", started, err) }()

	if body == "" {
		return nil, types.ErrEmptyBody
	}

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rec := &storage.DocumentRecord{Submitter: submitter, Body: body}
	records := storage.FromTypesAttributes(attrs)
	if err := s.store.InsertDocument(ctx, s.name, rec, records); err != nil {
		return nil, fmt.Errorf("failed to add document: %w", err)
	}

	s.opts.Metrics.Inserted(s.name)
	doc = newDocument(s, rec)
	doc.setAttributes(records)
	return doc, nil
}

// RandomMatching returns a uniformly random document matching the filter and
// every term of queryString, or the null document.
func (s *DocumentSet) RandomMatching(ctx context.Context, filter types.AttributeFilter, queryString string) (*Document, error) {
	return s.oneMatching(ctx, "random", filter, queryString, storage.OrderRandom)
}

// LatestMatching is RandomMatching ordered by creation time, newest first
func (s *DocumentSet) LatestMatching(ctx context.Context, filter types.AttributeFilter, queryString string) (*Document, error) {
	return s.oneMatching(ctx, "latest", filter, queryString, storage.OrderLatest)
}

func (s *DocumentSet) oneMatching(ctx context.Context, operation string, filter types.AttributeFilter,
	queryString string, order storage.Order) (doc *Document, err error) {
	started := time.Now()
	defer func() {
		status := metrics.StatusOf(err)
		if err == nil && !doc.Found() {
			status = metrics.StatusNotFound
		}
		s.observeStatus(operation, status, started, err)
	}()

	q, err := buildQuery(filter, queryString)
	if err != nil {
		return nil, err
	}

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rec, err := s.store.QueryOne(ctx, s.name, q, order)
	if errors.Is(err, storage.ErrNotFound) {
		return s.NullDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s document: %w", order, err)
	}

	doc = newDocument(s, rec)
	if err := doc.LoadAttributes(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// AllMatching returns one page of matching documents in ascending ID order.
// Attributes of the returned documents are bulk-loaded in a second query.
func (s *DocumentSet) AllMatching(ctx context.Context, filter types.AttributeFilter, queryString string,
	req PageRequest) (page *Page, err error) {
	started := time.Now()
	defer func() { s.observe("all", started, err) }()

	if req.Size < 0 || req.After < 0 {
		return nil, fmt.Errorf("invalid page request: size %d after %d", req.Size, req.After)
	}

	q, err := buildQuery(filter, queryString)
	if err != nil {
		return nil, err
	}

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	limit := 0
	if req.Size > 0 {
		limit = req.Size + 1
	}
	records, err := s.store.QueryMany(ctx, s.name, q, storage.Page{Limit: limit, After: req.After})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	page = &Page{HasPreviousPage: req.After > 0}
	if req.Size > 0 && len(records) > req.Size {
		page.HasNextPage = true
		records = records[:req.Size]
	}
	if len(records) == 0 {
		return page, nil
	}

	page.Documents = make([]*Document, len(records))
	ids := make([]int64, len(records))
	for i, rec := range records {
		page.Documents[i] = newDocument(s, rec)
		ids[i] = rec.ID
	}
	page.EndCursor = ids[len(ids)-1]

	attrs, err := s.store.LoadAttributes(ctx, s.name, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load page attributes: %w", err)
	}
	byDocument := make(map[int64][]*storage.AttributeRecord, len(ids))
	for _, a := range attrs {
		byDocument[a.DocumentID] = append(byDocument[a.DocumentID], a)
	}
	for _, doc := range page.Documents {
		doc.setAttributes(byDocument[doc.ID])
	}
	return page, nil
}

// CountMatching returns the number of matching documents
func (s *DocumentSet) CountMatching(ctx context.Context, filter types.AttributeFilter, queryString string) (n int, err error) {
	started := time.Now()
	defer func() { s.observe("count", started, err) }()

	q, err := buildQuery(filter, queryString)
	if err != nil {
		return 0, err
	}

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err = s.store.Count(ctx, s.name, q)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// UserStats ranks attribute values of the given kinds (default Options.StatsKinds)
// by how many documents carry them as speaker, then as mention. Results are
// remembered per kind set until an invalidating write or ResetStats.
func (s *DocumentSet) UserStats(ctx context.Context, kinds ...string) (table *stats.Table, err error) {
	started := time.Now()
	defer func() { s.observe("stats", started, err) }()

	if len(kinds) == 0 {
		kinds = s.opts.StatsKinds
	}
	kinds = slices.Clone(kinds)
	slices.Sort(kinds)
	kinds = slices.Compact(kinds)
	key := strings.Join(kinds, ",")

	s.statsMu.Lock()
	if t, ok := s.statsMemo[key]; ok {
		s.statsMu.Unlock()
		return t, nil
	}
	gen := s.statsGen
	s.statsMu.Unlock()

	v, err, _ := s.statsGroup.Do(fmt.Sprintf("%d/%s", gen, key), func() (interface{}, error) {
		// A flight that finished after our memo check may have filled it
		s.statsMu.Lock()
		t, ok := s.statsMemo[key]
		s.statsMu.Unlock()
		if ok {
			return t, nil
		}

		ctx, cancel, err := s.begin(ctx)
		if err != nil {
			return nil, err
		}
		defer cancel()

		counts, err := s.store.AttributeStats(ctx, s.name, kinds)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate attributes: %w", err)
		}
		b := stats.NewBuilder()
		for _, c := range counts {
			b.Add(c.Value, c.Kind, c.Count)
		}
		t = b.Build()

		s.statsMu.Lock()
		if s.statsGen == gen {
			s.statsMemo[key] = t
		}
		s.statsMu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*stats.Table), nil
}

// ResetStats discards remembered UserStats results
func (s *DocumentSet) ResetStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	clear(s.statsMemo)
}

// DeleteMatching removes every document matching the filter and returns how
// many were removed. An empty filter is rejected with storage.ErrEmptyFilter;
// use Truncate or Reset to clear the whole collection.
func (s *DocumentSet) DeleteMatching(ctx context.Context, filter types.AttributeFilter) (n int64, err error) {
	started := time.Now()
	defer func() { s.observe("delete", started, err) }()

	if filter.IsEmpty() {
		return 0, storage.ErrEmptyFilter
	}

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err = s.store.DeleteMatching(ctx, s.name, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	s.ResetStats()
	return n, nil
}

// Truncate removes every document while keeping the schema
func (s *DocumentSet) Truncate(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { s.observe("truncate", started, err) }()

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := s.store.Truncate(ctx, s.name); err != nil {
		return fmt.Errorf("failed to truncate collection: %w", err)
	}
	s.ResetStats()
	return nil
}

// Reset drops and recreates both tables, restarting ID sequences
func (s *DocumentSet) Reset(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { s.observe("reset", started, err) }()

	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	// Connects arriving while the tables are down wait on schemaMu
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.destroyed.Load() {
		return ErrDestroyed
	}

	s.connected.Store(false)
	s.ResetStats()
	if err := s.store.Destroy(ctx, s.name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	s.opts.Logger.Info("collection reset", zap.String("collection", s.name))
	if err := s.connectLocked(ctx); err != nil {
		return fmt.Errorf("failed to recreate collection %s: %w", s.name, err)
	}
	return nil
}

// Destroy drops both tables. The DocumentSet is unusable afterwards.
func (s *DocumentSet) Destroy(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { s.observe("destroy", started, err) }()

	if s.destroyed.Load() {
		return ErrDestroyed
	}
	if s.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.OperationTimeout)
		defer cancel()
	}

	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	// Destroy works whether or not the schema was ever connected
	if err := s.store.Destroy(ctx, s.name); err != nil {
		return fmt.Errorf("failed to destroy collection: %w", err)
	}
	s.destroyed.Store(true)
	s.connected.Store(false)
	s.ResetStats()
	s.opts.Logger.Info("collection destroyed", zap.String("collection", s.name))
	return nil
}
