package sqlitetarget

import "time"

const (
	_defaultExpiration = time.Duration(24*60) * time.Hour
	_cleanupInterval   = time.Duration(24) * time.Hour
)

type Option func(s *Store)

// WithPath sets the database file. The default is an in-memory store that
// lives for the process only.
func WithPath(path string) Option {
	return func(s *Store) {
		s.dsn = path
	}
}
