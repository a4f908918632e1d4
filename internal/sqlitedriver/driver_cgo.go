//go:build cgo

package sqlitedriver

import (
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3" with SQLCipher built in
)

// EncryptionSupported reports whether the registered driver honors
// PRAGMA key. The checkpoint store issues that pragma when an
// encryption key is configured; the SQLCipher build handles it.
const EncryptionSupported = true
