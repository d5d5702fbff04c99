//go:build purego || !sqlite_cgo
// +build purego !sqlite_cgo

package storage

// This file is compiled when building without CGO or with the purego tag.
// It uses a pure Go SQLite implementation.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// The pure Go implementation provides:
//   - No C compiler required
//   - Cross-platform compilation
//   - Suitable for development and most deployments
//
// Driver used: modernc.org/sqlite

import (
	"database/sql/driver"
	"fmt"
	"net/url"

	"modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

func init() {
	// modernc registers functions globally for every connection it opens
	err := sqlite.RegisterDeterministicScalarFunction(RegexpFunctionName, 2,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			pattern, text, ok := regexpArgs(args[0], args[1])
			if !ok {
				return nil, nil
			}
			matched, err := matchPattern(pattern, text)
			if err != nil {
				return nil, err
			}
			if matched {
				return int64(1), nil
			}
			return int64(0), nil
		})
	if err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", RegexpFunctionName, err))
	}
}

// connectionDSN encodes the pragmas as modernc _pragma parameters, which the
// driver runs on each new connection.
func connectionDSN(dbPath string, p connectionPragmas) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	if p.BusyTimeoutMS > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", p.BusyTimeoutMS))
	}
	if p.WAL {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	return dbPath + "?" + params.Encode()
}
