// Command fakematch is a stand-in match program for local runs. It accepts
// the arguments a real match program receives, optionally sleeps, and prints
// a transcript naming a winner.
//
// A player's strength is read from a "strength=N" token in its params; the
// stronger player wins and ties are decided by the seeds.
//
//	match_command: "fakematch -delay 500ms"
package main

import (
	"errors"
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	finalRound    = 1500
	strengthToken = "strength="
)

var errUsage = errors.New("teamA and teamB are required")

func main() {
	if err := play(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "fakematch:", err)
		os.Exit(2)
	}
}

type match struct {
	teamA, teamB   string
	paramA, paramB string
	mapName        string
	seedA, seedB   int64
	delay          time.Duration
	noise          int
	chatty         bool
}

func play(args []string, stdout, stderr io.Writer) error {
	// Skip a leading task name such as "fastrun".
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}

	var m match
	fs := flag.NewFlagSet("fakematch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&m.teamA, "PteamA", "", "package of side A")
	fs.StringVar(&m.teamB, "PteamB", "", "package of side B")
	fs.StringVar(&m.paramA, "PparamA", "", "params of side A")
	fs.StringVar(&m.paramB, "PparamB", "", "params of side B")
	fs.StringVar(&m.mapName, "Pmaps", "", "map name")
	fs.Int64Var(&m.seedA, "PseedA", 0, "seed of side A")
	fs.Int64Var(&m.seedB, "PseedB", 0, "seed of side B")
	fs.String("PsourceRoot", "", "ignored")
	fs.String("PbuildRoot", "", "ignored")
	fs.DurationVar(&m.delay, "delay", 0, "how long the match takes")
	fs.IntVar(&m.noise, "noise", 0, "bytes written to stderr")
	fs.BoolVar(&m.chatty, "chatty", false, "print robot output during the match")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if m.teamA == "" || m.teamB == "" {
		return errUsage
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.noise > 0 {
		if _, err := io.WriteString(stderr, strings.Repeat("!", m.noise)); err != nil {
			return err
		}
	}

	winner, side := m.winner()
	var b strings.Builder
	fmt.Fprintf(&b, "[server] -------------------- Match Starting --------------------\n")
	fmt.Fprintf(&b, "[server] %s vs. %s on %s\n", m.teamA, m.teamB, m.mapName)
	if m.chatty {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(&b, "[A:HQ#%d@%d] hello\n", i, i)
		}
	}
	fmt.Fprintf(&b, "[server] %s (%s) wins (round %d)\n", winner, side, finalRound)
	fmt.Fprintf(&b, "[server] ------------------- Match Finished --------------------\n")
	_, err := io.WriteString(stdout, b.String())
	return err
}

func (m *match) winner() (name, side string) {
	a, b := strength(m.paramA), strength(m.paramB)
	switch {
	case a > b:
		return m.teamA, "A"
	case b > a:
		return m.teamB, "B"
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d", m.teamA, m.teamB, m.mapName, m.seedA, m.seedB)
	if h.Sum32()%2 == 1 {
		return m.teamB, "B"
	}
	return m.teamA, "A"
}

// strength parses the last strength=N token of params, ignoring -D prefixes.
func strength(params string) int {
	n := 0
	for _, tok := range strings.Fields(params) {
		tok = strings.TrimPrefix(tok, "-D")
		if v, ok := strings.CutPrefix(tok, strengthToken); ok {
			if parsed, err := strconv.Atoi(v); err == nil {
				n = parsed
			}
		}
	}
	return n
}
