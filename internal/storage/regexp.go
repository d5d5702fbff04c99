package storage

import (
	"fmt"
	"regexp"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/docstore-mcp/internal/query"
)

// RegexpFunctionName is the SQL function used for case-insensitive body matching:
// iregexp(pattern, text) returns 1 when text matches pattern ignoring case.
const RegexpFunctionName = "iregexp"

// DefaultPatternCacheSize is the number of compiled patterns kept in memory
const DefaultPatternCacheSize = 512

// patterns caches compiled matchers. SQL functions are registered once per
// driver, so the cache is shared by every database handle in the process.
var patterns atomic.Pointer[lru.Cache[string, *regexp.Regexp]]

func init() {
	if err := ConfigurePatternCache(DefaultPatternCacheSize); err != nil {
		panic(fmt.Sprintf("failed to create pattern cache: %v", err))
	}
}

// ConfigurePatternCache replaces the compiled pattern cache with one of the given size
func ConfigurePatternCache(size int) error {
	if size <= 0 {
		size = DefaultPatternCacheSize
	}
	cache, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return err
	}
	patterns.Store(cache)
	return nil
}

// matchPattern implements iregexp
func matchPattern(pattern, text string) (bool, error) {
	cache := patterns.Load()
	re, ok := cache.Get(pattern)
	if !ok {
		var err error
		re, err = query.Compile(pattern)
		if err != nil {
			return false, err
		}
		cache.Add(pattern, re)
	}
	return re.MatchString(text), nil
}

// regexpArgs converts raw driver values of an iregexp call
func regexpArgs(pattern, text interface{}) (string, string, bool) {
	p, ok := asString(pattern)
	if !ok {
		return "", "", false
	}
	t, ok := asString(text)
	if !ok {
		return "", "", false
	}
	return p, t, true
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
