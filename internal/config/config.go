// Package config defines benchmark configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a config file and environment variables over the defaults.
// - External errors must be wrapped via this package's sentinel errors.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Competitor is a package from the working tree that is under evaluation.
type Competitor struct {
	// Name is the package the match program loads, e.g. "landscaperwaller".
	Name string `koanf:"name"`
	// Params are free-form debug parameters passed to the player.
	Params []string `koanf:"params"`
}

// Reference is a package pinned at a commit and checked out under a generated name.
type Reference struct {
	Package string   `koanf:"package"`
	Commit  string   `koanf:"commit"`
	Params  []string `koanf:"params"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the status HTTP listen address, e.g. ":9080". Empty disables it.
	Addr string `koanf:"addr"`

	// MaxParallel bounds the number of match processes running at once.
	MaxParallel int `koanf:"max_parallel"`

	// PollIntervalMS is the longest the scheduler waits on a single running match per pass.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// LaunchRetries is how many times a failed process launch is retried.
	LaunchRetries int `koanf:"launch_retries"`

	// MatchTimeoutMS kills matches running longer than this. Zero disables the timeout.
	MatchTimeoutMS int `koanf:"match_timeout_ms"`

	// StderrThreshold is the stderr size above which a match is reported as suspicious.
	StderrThreshold int `koanf:"stderr_threshold"`

	// RunsPerMatchup is the number of repetitions of every pairing on every map.
	RunsPerMatchup int `koanf:"runs_per_matchup"`

	// Maps lists the map names every pairing is played on.
	Maps []string `koanf:"maps"`

	// WorkDir is where the match and build commands are executed.
	WorkDir string `koanf:"work_dir"`

	// SourceRoot and BuildRoot are handed to the match program.
	SourceRoot string `koanf:"source_root"`
	BuildRoot  string `koanf:"build_root"`

	// MatchCommand and BuildCommand are shell-style command lines.
	MatchCommand string `koanf:"match_command"`
	BuildCommand string `koanf:"build_command"`

	// SkipBuild disables the build step, e.g. when the players are prebuilt.
	SkipBuild bool `koanf:"skip_build"`

	// BenchmarkPrefix prefixes the package names of checked out references.
	BenchmarkPrefix string `koanf:"benchmark_prefix"`

	// Latest is the roster under evaluation.
	Latest []Competitor `koanf:"latest"`

	// References is the fixed reference roster. When set the run is a gauntlet.
	References []Reference `koanf:"references"`

	// ResultsDB is a sqlite file receiving every match result. Empty keeps results in memory.
	ResultsDB string `koanf:"results_db"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            "",
		MaxParallel:     8,
		PollIntervalMS:  1000,
		LaunchRetries:   2,
		MatchTimeoutMS:  0,
		StderrThreshold: 213,
		RunsPerMatchup:  2,
		Maps: []string{
			"ALandDivided",
			"CentralLake",
			"CentralSoup",
			"FourLakeLand",
			"SoupOnTheSide",
			"TwoForOneAndTwoForAll",
			"WaterBot",
			"Big",
			"Small",
			"HardToPathfind",
		},
		WorkDir:         ".",
		SourceRoot:      "./src",
		BuildRoot:       "./build",
		MatchCommand:    "./gradlew fastrun",
		BuildCommand:    "./gradlew build",
		BenchmarkPrefix: "benchmark",
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MatchTimeout returns the match timeout as a duration.
func (c *Config) MatchTimeout() time.Duration {
	return time.Duration(c.MatchTimeoutMS) * time.Millisecond
}

// Gauntlet reports whether the latest roster plays against references instead of itself.
func (c *Config) Gauntlet() bool {
	return len(c.References) > 0
}

// Validate checks the config for values that cannot produce a runnable batch.
func (c *Config) Validate() error {
	switch {
	case c.MaxParallel < 1:
		return fmt.Errorf("%w: max_parallel must be at least 1", ErrInvalidConfig)
	case c.PollIntervalMS < 1:
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	case c.LaunchRetries < 0:
		return fmt.Errorf("%w: launch_retries must not be negative", ErrInvalidConfig)
	case c.MatchTimeoutMS < 0:
		return fmt.Errorf("%w: match_timeout_ms must not be negative", ErrInvalidConfig)
	case c.RunsPerMatchup < 1:
		return fmt.Errorf("%w: runs_per_matchup must be at least 1", ErrInvalidConfig)
	case len(c.Maps) == 0:
		return fmt.Errorf("%w: maps must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.MatchCommand) == "":
		return fmt.Errorf("%w: match_command must not be empty", ErrInvalidConfig)
	case !c.SkipBuild && strings.TrimSpace(c.BuildCommand) == "":
		return fmt.Errorf("%w: build_command must not be empty unless skip_build is set", ErrInvalidConfig)
	}

	for i, m := range c.Maps {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: maps[%d] is empty", ErrInvalidConfig, i)
		}
	}
	for i, l := range c.Latest {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("%w: latest[%d] has no name", ErrInvalidConfig, i)
		}
	}
	for i, r := range c.References {
		if r.Package == "" || r.Commit == "" {
			return fmt.Errorf("%w: references[%d] needs package and commit", ErrInvalidConfig, i)
		}
	}

	if c.Gauntlet() {
		if len(c.Latest) == 0 {
			return fmt.Errorf("%w: a gauntlet needs at least one latest competitor", ErrInvalidConfig)
		}
	} else if len(c.Latest) < 2 {
		return fmt.Errorf("%w: a round-robin needs at least two latest competitors", ErrInvalidConfig)
	}
	return nil
}
