//go:build !cgo

package history

// Pure Go SQLite for CGO_ENABLED=0 builds, which the goffi-based GPU
// backend requires.
import _ "modernc.org/sqlite"

// driverName is the database/sql driver backing the store.
const driverName = "sqlite"
