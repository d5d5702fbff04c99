package docset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docstore-mcp/internal/metrics"
	"github.com/dshills/docstore-mcp/internal/storage"
)

// ErrUnknownCollection is returned for names the registry has not opened
var ErrUnknownCollection = errors.New("unknown collection")

// RegistryOptions holds defaults applied to every DocumentSet the registry opens
type RegistryOptions struct {
	Defaults       Options
	RestoreWorkers int // Concurrent reopens during Restore (default 4)
}

// Registry keeps one live DocumentSet per collection name and records
// opened collections in the backend catalog so Restore can reopen them.
type Registry struct {
	backend storage.Backend
	opts    RegistryOptions
	logger  *zap.Logger

	mu   sync.Mutex
	sets map[string]*DocumentSet
}

// NewRegistry creates an empty registry over backend
func NewRegistry(backend storage.Backend, opts RegistryOptions) (*Registry, error) {
	if backend == nil {
		return nil, ErrNoStorage
	}
	if opts.RestoreWorkers <= 0 {
		opts.RestoreWorkers = 4
	}
	logger := opts.Defaults.Logger
	if logger == nil {
		logger = zap.NewNop()
		opts.Defaults.Logger = logger
	}
	return &Registry{
		backend: backend,
		opts:    opts,
		logger:  logger,
		sets:    make(map[string]*DocumentSet),
	}, nil
}

// Metrics returns the collector shared by every set, possibly nil
func (r *Registry) Metrics() *metrics.Collector {
	return r.opts.Defaults.Metrics
}

// Open returns the live DocumentSet for name, creating its schema and catalog
// entry on first use. A non-empty notFoundMessage is stored in the catalog
// and applied to the live handle, also when it is already open; otherwise the
// catalogued message, then the registry default, applies.
func (r *Registry) Open(ctx context.Context, name, notFoundMessage string) (*DocumentSet, error) {
	r.mu.Lock()
	set, ok := r.sets[name]
	r.mu.Unlock()
	if ok {
		if notFoundMessage != "" {
			if err := r.backend.RegisterCollection(ctx, &storage.CollectionInfo{Name: name, NotFoundMessage: notFoundMessage}); err != nil {
				return nil, fmt.Errorf("failed to register collection %s: %w", name, err)
			}
			set.SetNotFoundMessage(notFoundMessage)
		}
		return set, nil
	}

	if err := storage.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	info := &storage.CollectionInfo{Name: name, NotFoundMessage: notFoundMessage}
	if err := r.backend.RegisterCollection(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to register collection %s: %w", name, err)
	}

	opts := r.opts.Defaults
	if info.NotFoundMessage != "" {
		opts.NotFoundMessage = info.NotFoundMessage
	}
	set, err := New(name, r.backend, opts)
	if err != nil {
		return nil, err
	}
	if err := set.WhenConnected(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have won the race; keep the first handle
	if existing, ok := r.sets[name]; ok {
		existing.SetNotFoundMessage(notFoundMessage)
		return existing, nil
	}
	r.sets[name] = set
	r.logger.Info("collection opened", zap.String("collection", name))
	return set, nil
}

// Get returns an already opened DocumentSet
func (r *Registry) Get(name string) (*DocumentSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return set, nil
}

// Names returns the opened collection names in sorted order
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Catalog returns every collection recorded in the backend catalog
func (r *Registry) Catalog(ctx context.Context) ([]*storage.CollectionInfo, error) {
	return r.backend.ListCollections(ctx)
}

// Destroy drops the collection's tables, removes it from the catalog and
// forgets its handle
func (r *Registry) Destroy(ctx context.Context, name string) error {
	r.mu.Lock()
	set, ok := r.sets[name]
	delete(r.sets, name)
	r.mu.Unlock()

	if !ok {
		var err error
		if set, err = New(name, r.backend, r.opts.Defaults); err != nil {
			return err
		}
	}
	if err := set.Destroy(ctx); err != nil {
		return err
	}
	if err := r.backend.ForgetCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to forget collection %s: %w", name, err)
	}
	return nil
}

// Restore reopens every catalogued collection concurrently
func (r *Registry) Restore(ctx context.Context) error {
	infos, err := r.backend.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.RestoreWorkers)
	for _, info := range infos {
		g.Go(func() error {
			_, err := r.Open(gctx, info.Name, info.NotFoundMessage)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.logger.Info("collections restored", zap.Int("count", len(infos)))
	return nil
}
