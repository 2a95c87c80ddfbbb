package service

import (
	"github.com/okian/matchbench/internal/adapters/mq/worker"
	"github.com/okian/matchbench/internal/adapters/repository"
	"github.com/okian/matchbench/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLauncher replaces the process launcher, e.g. with a synthetic one in tests.
func WithLauncher(l worker.Launcher) Option {
	return func(s *Service) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithWorkspace replaces the source checkout and build step.
func WithWorkspace(w Workspace) Option {
	return func(s *Service) {
		if w != nil {
			s.workspace = w
		}
	}
}

// WithStore sets where match results are persisted. The caller keeps ownership.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
