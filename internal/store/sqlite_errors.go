package store

import "strings"

// isSQLiteConflictError reports whether the error is a SQLITE_BUSY or
// "database is locked" error. Both are transient concurrency errors that
// warrant a retry.
func isSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}
