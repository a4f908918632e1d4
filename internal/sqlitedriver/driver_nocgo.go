//go:build !cgo

package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}

// EncryptionSupported reports whether the registered driver honors
// PRAGMA key. The pure-Go driver does not, so the checkpoint store
// refuses an encryption key rather than writing plaintext silently.
const EncryptionSupported = false
