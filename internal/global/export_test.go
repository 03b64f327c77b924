package global

// Opened reports whether the lazy database has been opened.
// This file only compiles during `go test`.
func (s *SQLiteStore) Opened() bool {
	return s.db != nil
}
