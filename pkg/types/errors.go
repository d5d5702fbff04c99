package types

import "errors"

// Domain errors for document validation
var (
	ErrEmptyBody = errors.New("document body cannot be empty")
)
