package workspace

import "github.com/okian/matchbench/pkg/logger"

// Option applies a configuration option to the Workspace.
type Option func(*Workspace)

// WithSourceRoot sets the source directory, relative to the workspace root.
func WithSourceRoot(root string) Option {
	return func(w *Workspace) {
		if root != "" {
			w.sourceRoot = root
		}
	}
}

// WithPrefix sets the prefix of generated package names.
func WithPrefix(prefix string) Option {
	return func(w *Workspace) {
		if prefix != "" {
			w.prefix = prefix
		}
	}
}

// WithBuildCommand sets the shell-style build command line.
func WithBuildCommand(command string) Option {
	return func(w *Workspace) {
		w.buildCommand = command
	}
}

// WithConcurrency bounds the number of files extracted at once.
func WithConcurrency(n int) Option {
	return func(w *Workspace) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}
