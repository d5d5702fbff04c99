package importer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docstore-mcp/internal/docset"
	"github.com/dshills/docstore-mcp/internal/logger"
	"github.com/dshills/docstore-mcp/pkg/types"
)

// ErrImportInProgress is returned when another import into the same target is running
var ErrImportInProgress = errors.New("import already in progress")

// maxLineBytes bounds a single JSON Lines record
const maxLineBytes = 1 << 20

// Target receives imported documents. *docset.DocumentSet implements it.
type Target interface {
	Name() string
	Add(ctx context.Context, submitter, body string, attrs []types.Attribute) (*docset.Document, error)
}

// Record is one line of a JSON Lines import
type Record struct {
	Submitter  string              `json:"submitter"`
	Body       string              `json:"body"`
	Attributes map[string][]string `json:"attributes"`
}

// attributes flattens the record's attributes in kind order
func (r *Record) attributes() []types.Attribute {
	kinds := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var attrs []types.Attribute
	for _, k := range kinds {
		for _, v := range r.Attributes[k] {
			attrs = append(attrs, types.Attribute{Kind: k, Value: v})
		}
	}
	return attrs
}

// Importer loads documents into a Target from JSON Lines input
type Importer struct {
	target Target
	lock   ImportLock

	// Worker pool configuration
	workers int
}

// Config contains configuration for an import
type Config struct {
	Workers        int  // Number of concurrent inserts (default: runtime.NumCPU()); 1 keeps input order
	SkipDuplicates bool // Skip records whose body already appeared earlier in the same input

	// Filter restricts the import to records carrying every listed attribute.
	// Records that do not match are counted as skipped.
	Filter types.AttributeFilter
}

// Statistics contains statistics about the import operation
type Statistics struct {
	Read          int
	Imported      int
	Skipped       int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Importer for target
func New(target Target) *Importer {
	return &Importer{
		target:  target,
		workers: runtime.NumCPU(),
	}
}

// Import reads JSON Lines records from r and adds each as a document.
// Malformed or rejected records are counted as failed and do not stop the
// import; context cancellation and read errors do.
func (im *Importer) Import(ctx context.Context, r io.Reader, config *Config) (*Statistics, error) {
	if !im.lock.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", ErrImportInProgress, im.target.Name())
	}
	defer im.lock.Release()

	if config == nil {
		config = &Config{SkipDuplicates: true}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = im.workers
	}

	log := logger.FromContext(ctx).With(zap.String("collection", im.target.Name()))

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		imported int32
		failed   int32
		mu       sync.Mutex // Protect stats.ErrorMessages
	)
	recordError := func(line int, err error) {
		atomic.AddInt32(&failed, 1)
		log.Debug("record rejected", zap.Int("line", line), zap.Error(err))
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("line %d: %v", line, err))
		mu.Unlock()
	}

	// Use errgroup for concurrent inserts with error propagation
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	seen := make(map[[32]byte]bool)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		stats.Read++

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			recordError(line, fmt.Errorf("invalid record: %w", err))
			continue
		}

		attrs := rec.attributes()
		if !config.Filter.Matches(attrs) {
			stats.Skipped++
			continue
		}

		if config.SkipDuplicates {
			hash := sha256.Sum256([]byte(rec.Body))
			if seen[hash] {
				stats.Skipped++
				continue
			}
			seen[hash] = true
		}

		lineNo := line
		g.Go(func() error {
			_, err := im.target.Add(gctx, rec.Submitter, rec.Body, attrs)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				recordError(lineNo, err)
				return nil
			}
			atomic.AddInt32(&imported, 1)
			return nil
		})
	}

	// Wait for all goroutines to complete
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	stats.Imported = int(imported)
	stats.Failed = int(failed)
	stats.Duration = time.Since(startTime)
	return stats, nil
}
