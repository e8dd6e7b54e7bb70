// Package models defines the data structures for the loan metrics engine.
package models

import (
	"errors"
)

// Common errors
var (
	ErrInvalidScopeKey  = errors.New("invalid scope key")
	ErrSnapshotNotFound = errors.New("no snapshot for scope")
)
