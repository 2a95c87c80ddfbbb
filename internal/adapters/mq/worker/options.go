package worker

import (
	"time"

	"github.com/okian/matchbench/internal/domain/model"
	"github.com/okian/matchbench/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithMaxParallel bounds the number of running match processes.
func WithMaxParallel(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxParallel = n
		}
	}
}

// WithPollInterval sets the longest single wait on a running match.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithLaunchRetries sets how many times a failed launch is retried.
func WithLaunchRetries(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.launchRetries = n
		}
	}
}

// WithMatchTimeout kills matches running longer than d. Zero disables it.
func WithMatchTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d >= 0 {
			p.matchTimeout = d
		}
	}
}

// WithStderrThreshold sets the stderr size above which a match is reported.
func WithStderrThreshold(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.stderrThreshold = n
		}
	}
}

// WithParser replaces the transcript parser.
func WithParser(parse func(stdout []byte) (model.Side, error)) Option {
	return func(p *Pool) {
		if parse != nil {
			p.parse = parse
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
