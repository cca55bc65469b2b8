// Package guard holds the checks and transformations applied to submitted
// comment content before it is stored.
package guard

import "errors"

var (
	ErrSpam  = errors.New("content rejected as spam")
	ErrAbuse = errors.New("source address rejected")
)
