package repository

import "github.com/okian/matchbench/pkg/logger"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPragmas replaces the pragmas applied to the write connection.
func WithPragmas(pragmas ...string) Option {
	return func(s *SQLiteStore) {
		s.pragmas = pragmas
	}
}
