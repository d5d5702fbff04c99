//go:build sqlite_cgo && !purego
// +build sqlite_cgo,!purego

package storage

// This file is compiled when building with CGO and the sqlite_cgo tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
//
// The CGO build provides:
//   - The reference C SQLite implementation
//   - Faster query execution on large collections
//   - Recommended for production deployments
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"database/sql"
	"net/url"
	"strconv"

	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3_docstore"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(RegexpFunctionName, func(pattern, text string) (int64, error) {
				matched, err := matchPattern(pattern, text)
				if err != nil || !matched {
					return 0, err
				}
				return 1, nil
			}, true)
		},
	})
}

// connectionDSN encodes the pragmas as go-sqlite3 connection parameters,
// which the driver applies on each new connection.
func connectionDSN(dbPath string, p connectionPragmas) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	if p.BusyTimeoutMS > 0 {
		params.Set("_busy_timeout", strconv.FormatInt(p.BusyTimeoutMS, 10))
	}
	if p.WAL {
		params.Set("_journal_mode", "WAL")
	}
	return dbPath + "?" + params.Encode()
}
