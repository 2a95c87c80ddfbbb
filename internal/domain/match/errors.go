package match

import "errors"

// Sentinel errors for invocation building and transcript parsing.
var (
	ErrMalformedOutput   = errors.New("malformed match output")
	ErrInvalidInvocation = errors.New("invalid match invocation")
)
