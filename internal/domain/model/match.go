// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Roster names the group a competitor was registered from.
type Roster string

const (
	// RosterLatest holds the code under evaluation.
	RosterLatest Roster = "latest"
	// RosterReference holds the pinned reference versions.
	RosterReference Roster = "reference"
)

// Competitor is a registered player. Identity is its index in the plan, never its name.
type Competitor struct {
	Name   string   // package name the match program loads
	Params []string // free-form parameters for the player
	Roster Roster
}

// JoinedParams returns the parameters as the single string handed to the match program.
func (c Competitor) JoinedParams() string {
	return strings.Join(c.Params, " ")
}

// Side is the physical slot a competitor occupies in a match.
type Side int

const (
	// SideA is the first team slot.
	SideA Side = iota
	// SideB is the second team slot.
	SideB
)

func (s Side) String() string {
	if s == SideB {
		return "B"
	}
	return "A"
}

// Matchup is one scheduled game between two competitors on one map.
type Matchup struct {
	Home       int // tensor index credited with Home wins
	Away       int
	A          Competitor // competitor playing as side A
	B          Competitor
	Map        string
	MapIndex   int
	Repetition int
	Swapped    bool // physical A is the Away competitor
	SeedA      int64
	SeedB      int64
}

// Invocation is a fully resolved external command line.
type Invocation struct {
	Path string   // executable
	Args []string // arguments, not including Path
	Dir  string   // working directory
}

// String renders the invocation as a reproducible command line.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, quote(inv.Path))
	for _, a := range inv.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"\\$`") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// Job is a matchup ready to be dispatched. It is consumed exactly once.
type Job struct {
	ID         string
	Seq        int // dispatch order within the batch
	Matchup    Matchup
	Invocation Invocation
}

// Result is the outcome of one dispatched job.
type Result struct {
	Job         Job
	Winner      Side
	Err         error // nil on success
	Duration    time.Duration
	StderrBytes int
	Attempts    int
	FinishedAt  time.Time
}

// OK reports whether the job produced a winner.
func (r Result) OK() bool { return r.Err == nil }

// Output is what a finished match process left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}
