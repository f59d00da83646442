package storage

import "strings"

// isRetriable reports whether err is SQLite's busy or locked error,
// indicating a transient write conflict that a retry may resolve.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked")
}

// WithRetry executes fn, retrying while isRetriable(err) is true. Exposed
// for callers outside this package that run their own multi-statement
// write sequences against db.Conn().
func WithRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
	}
	return err
}
