package match

import (
	"bytes"
	"fmt"

	"github.com/okian/matchbench/internal/domain/model"
)

const (
	winsMarker    = "wins"
	startMarker   = "Match Starting"
	finishMarker  = "Match Finished"
	sideToken     = 2
	chattyNewline = 4
)

// ParseWinner extracts the winning side from a match transcript.
//
// The first line containing "wins" is expected to look like
// "[server] teamname (A) wins (round 1500)".
func ParseWinner(stdout []byte) (model.Side, error) {
	idx := bytes.Index(stdout, []byte(winsMarker))
	if idx < 0 {
		return model.SideA, fmt.Errorf("%w: no %q line", ErrMalformedOutput, winsMarker)
	}

	start := bytes.LastIndexByte(stdout[:idx], '\n') + 1
	end := len(stdout)
	if n := bytes.IndexByte(stdout[idx:], '\n'); n >= 0 {
		end = idx + n
	}
	line := stdout[start:end]

	tokens := bytes.Fields(line)
	if len(tokens) <= sideToken {
		return model.SideA, fmt.Errorf("%w: short winner line %q", ErrMalformedOutput, line)
	}

	switch string(tokens[sideToken]) {
	case "(A)":
		return model.SideA, nil
	case "(B)":
		return model.SideB, nil
	default:
		return model.SideA, fmt.Errorf("%w: unknown side %q in %q", ErrMalformedOutput, tokens[sideToken], line)
	}
}

// ChattyTranscript reports whether players printed to stdout during the match.
func ChattyTranscript(stdout []byte) bool {
	start := bytes.Index(stdout, []byte(startMarker))
	if start < 0 {
		return false
	}
	end := bytes.Index(stdout[start:], []byte(finishMarker))
	if end < 0 {
		return false
	}
	return bytes.Count(stdout[start:start+end], []byte{'\n'}) > chattyNewline
}
