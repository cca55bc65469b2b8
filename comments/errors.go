package comments

import "errors"

var (
	ErrValidation = errors.New("invalid comment")
	ErrSpam       = errors.New("comment rejected as spam")
	ErrAbuse      = errors.New("sender rejected")
	ErrThrottled  = errors.New("posting too often")
	ErrStorage    = errors.New("comment storage failed")
)
