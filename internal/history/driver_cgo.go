//go:build cgo

package history

import _ "github.com/mattn/go-sqlite3"

// driverName is the database/sql driver backing the store.
const driverName = "sqlite3"
