//go:build cgo && !purego
// +build cgo,!purego

package storage

// Compiled when CGO is available. Uses the C SQLite driver, the faster
// option for production deployments.
//
// Build command:
//   CGO_ENABLED=1 go build ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
