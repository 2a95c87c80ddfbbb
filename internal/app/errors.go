package service

import "errors"

// Sentinel kinds for batch errors.
var (
	ErrPrepare   = errors.New("workspace preparation failed")
	ErrPlan      = errors.New("batch planning failed")
	ErrCancelled = errors.New("batch cancelled")
)
