// Package sqlitedriver registers a SQLite database/sql driver under the
// name "sqlite3". CGO builds (the default on macOS and Linux) get
// go-sqlcipher, which supports SQLCipher encryption for checkpoint
// databases. Builds without CGO (common on Windows) register the pure-Go
// modernc.org/sqlite driver instead; it works but cannot encrypt.
//
// Import for side effects only:
//
//	import _ "github.com/teradata-labs/conductor/internal/sqlitedriver"
package sqlitedriver
