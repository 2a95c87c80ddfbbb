// Package workspace prepares player sources and builds them before a batch.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sync/errgroup"

	"github.com/okian/matchbench/pkg/logger"
	"github.com/okian/matchbench/pkg/metrics"
)

const (
	defaultSourceRoot = "./src"
	defaultPrefix     = "benchmark"
	outputTail        = 2048
)

// Workspace is a git working tree that holds player packages.
type Workspace struct {
	dir          string
	sourceRoot   string
	prefix       string
	buildCommand string
	concurrency  int
	logger       logger.Logger
}

// New creates a Workspace rooted at dir.
func New(dir string, opts ...Option) *Workspace {
	w := &Workspace{
		dir:          dir,
		sourceRoot:   defaultSourceRoot,
		prefix:       defaultPrefix,
		buildCommand: "./gradlew build",
		concurrency:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("workspace")
	}
	return w
}

// GeneratedName is the package name a reference is checked out as.
func (w *Workspace) GeneratedName(pkg, commit string) string {
	return fmt.Sprintf("%s_%s_%s", w.prefix, pkg, commit)
}

// Checkout copies package pkg as it was at commit into a sibling package
// with a generated name and returns that name. Package and static import
// declarations are rewritten to the generated name.
func (w *Workspace) Checkout(ctx context.Context, pkg, commit string) (string, error) {
	generated := w.GeneratedName(pkg, commit)
	treePath := path.Join(path.Clean(filepath.ToSlash(w.sourceRoot)), pkg)

	listing, err := w.git(ctx, "cat-file", "-p", commit+":"+treePath+"/")
	if err != nil {
		return "", fmt.Errorf("%w: list %s at %s: %w", ErrCheckout, pkg, commit, err)
	}
	files := blobNames(listing)
	if len(files) == 0 {
		return "", fmt.Errorf("%w: %s has no files at %s", ErrCheckout, pkg, commit)
	}

	target := filepath.Join(w.dir, filepath.FromSlash(w.sourceRoot), generated)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCheckout, err)
	}

	rename := renamer(pkg, generated)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, name := range files {
		name := name // per-iteration copy; go directive predates Go 1.22 loop semantics
		g.Go(func() error {
			content, err := w.git(gctx, "cat-file", "-p", commit+":"+treePath+"/"+name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			if err := os.WriteFile(filepath.Join(target, name), rename(content), 0o644); err != nil { //nolint:gosec // sources are meant to be readable
				return fmt.Errorf("write %s: %w", name, err)
			}
			metrics.RecordCheckoutFile()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("%w: %s at %s: %w", ErrCheckout, pkg, commit, err)
	}

	w.logger.Info(ctx, "reference checked out",
		logger.String("package", pkg),
		logger.String("commit", commit),
		logger.String("as", generated),
		logger.Int("files", len(files)),
	)
	return generated, nil
}

// Build runs the build command once. Any failure is fatal for the batch.
func (w *Workspace) Build(ctx context.Context) error {
	args, err := shlex.Split(w.buildCommand)
	if err != nil {
		return fmt.Errorf("%w: parse %q: %w", ErrBuild, w.buildCommand, err)
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: empty build command", ErrBuild)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // command lines come from local configuration
	cmd.Dir = w.dir
	out, err := cmd.CombinedOutput()
	took := time.Since(start)
	metrics.UpdateBuildDuration(took.Seconds())
	if err != nil {
		return fmt.Errorf("%w: %s: %w\n%s", ErrBuild, w.buildCommand, err, tail(out))
	}

	w.logger.Info(ctx, "build finished", logger.String("command", w.buildCommand), logger.Duration("took", took))
	return nil
}

func (w *Workspace) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// blobNames returns the file names of a tree listing ("<mode> <type> <sha>\t<name>").
func blobNames(listing []byte) []string {
	var names []string
	for _, line := range strings.Split(string(listing), "\n") {
		meta, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		if fields := strings.Fields(meta); len(fields) == 3 && fields[1] == "blob" {
			names = append(names, name)
		}
	}
	return names
}

// renamer rewrites package and static import declarations from orig to generated.
func renamer(orig, generated string) func([]byte) []byte {
	re := regexp.MustCompile(`(?m)\b(package|import static)(\s+)` + regexp.QuoteMeta(orig) + `\b`)
	repl := []byte("${1}${2}" + generated)
	return func(src []byte) []byte {
		return re.ReplaceAll(src, repl)
	}
}

func tail(out []byte) string {
	if len(out) > outputTail {
		out = out[len(out)-outputTail:]
	}
	return strings.TrimSpace(string(out))
}
