package worker

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrProcessLaunch = errors.New("match process launch failed")
	ErrMatchTimeout  = errors.New("match timed out")
	ErrStopped       = errors.New("scheduler stopped")
)
