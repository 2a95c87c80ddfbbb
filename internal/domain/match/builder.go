// Package match builds match program invocations and parses their transcripts.
package match

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/okian/matchbench/internal/domain/model"
)

// Builder turns a matchup into a command line for the external match program.
type Builder struct {
	command    []string
	dir        string
	sourceRoot string
	buildRoot  string
}

// Option configures a Builder.
type Option func(*Builder)

// WithDir sets the working directory of every invocation.
func WithDir(dir string) Option {
	return func(b *Builder) {
		if dir != "" {
			b.dir = dir
		}
	}
}

// WithSourceRoot sets the checkout root handed to the match program.
func WithSourceRoot(root string) Option {
	return func(b *Builder) {
		if root != "" {
			b.sourceRoot = root
		}
	}
}

// WithBuildRoot sets the build output root handed to the match program.
func WithBuildRoot(root string) Option {
	return func(b *Builder) {
		if root != "" {
			b.buildRoot = root
		}
	}
}

// NewBuilder creates a Builder for a shell-style command line such as "./gradlew fastrun".
func NewBuilder(command string, opts ...Option) (*Builder, error) {
	parts, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("%w: match command %q: %w", ErrInvalidInvocation, command, err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty match command", ErrInvalidInvocation)
	}

	b := &Builder{
		command:    parts,
		dir:        ".",
		sourceRoot: "./src",
		buildRoot:  "./build",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build resolves the invocation for one game of a versus b on mapName.
func (b *Builder) Build(a, bc model.Competitor, mapName string, seedA, seedB int64) (model.Invocation, error) {
	switch {
	case strings.TrimSpace(a.Name) == "" || strings.TrimSpace(bc.Name) == "":
		return model.Invocation{}, fmt.Errorf("%w: competitor name is empty", ErrInvalidInvocation)
	case strings.TrimSpace(mapName) == "":
		return model.Invocation{}, fmt.Errorf("%w: map name is empty", ErrInvalidInvocation)
	case seedA < 0 || seedB < 0:
		return model.Invocation{}, fmt.Errorf("%w: negative seed (%d, %d)", ErrInvalidInvocation, seedA, seedB)
	}

	args := make([]string, 0, len(b.command)-1+9)
	args = append(args, b.command[1:]...)
	args = append(args,
		"-PteamA="+a.Name,
		"-PteamB="+bc.Name,
		"-PparamA="+a.JoinedParams(),
		"-PparamB="+bc.JoinedParams(),
		"-Pmaps="+mapName,
		"-PseedA="+strconv.FormatInt(seedA, 10),
		"-PseedB="+strconv.FormatInt(seedB, 10),
		"-PsourceRoot="+b.sourceRoot,
		"-PbuildRoot="+b.buildRoot,
	)

	return model.Invocation{
		Path: b.command[0],
		Args: args,
		Dir:  b.dir,
	}, nil
}

// BuildMatchup resolves the invocation for a planned matchup.
func (b *Builder) BuildMatchup(m model.Matchup) (model.Invocation, error) {
	return b.Build(m.A, m.B, m.Map, m.SeedA, m.SeedB)
}
