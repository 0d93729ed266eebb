package project

import "errors"

// Sentinel errors for the project registry.
var (
	ErrInvalidAsset = errors.New("project: invalid asset path")
	ErrNotFound     = errors.New("project: not found")
)
