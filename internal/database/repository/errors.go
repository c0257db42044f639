package repository

import "errors"

var (
	// ErrNotFound reports a row that does not exist in the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied reports a row owned by a different user.
	ErrAccessDenied = errors.New("access denied")
	// ErrInUse reports a row that other rows still reference.
	ErrInUse = errors.New("in use")
)
