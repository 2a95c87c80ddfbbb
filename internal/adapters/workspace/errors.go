package workspace

import "errors"

// Sentinel errors for source preparation.
var (
	ErrCheckout = errors.New("checkout failed")
	ErrBuild    = errors.New("build failed")
)
